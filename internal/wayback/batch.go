package wayback

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"lukechampine.com/blake3"

	"github.com/sigman78/wayback-rewrite/internal/rewrite"
)

// ReportFile is the name of the batch report written next to the output.
const ReportFile = "report.json"

// Document outcomes recorded in the report.
const (
	OutcomeRewritten = "rewritten"
	OutcomeCopied    = "copied"
	OutcomeMissing   = "missing"
	OutcomeFailed    = "failed"
	// OutcomeDuplicate marks an older snapshot whose URL maps to the same
	// mirror path as a newer one; only the newer one is rewritten.
	OutcomeDuplicate = "duplicate"
)

// DocumentReport is one line of the batch report.
type DocumentReport struct {
	URL       string         `json:"url"`
	Path      string         `json:"path"`
	Timestamp string         `json:"timestamp"`
	Outcome   string         `json:"outcome"`
	Kind      string         `json:"kind,omitempty"`
	Stats     *rewrite.Stats `json:"stats,omitempty"`
	Digest    string         `json:"blake3,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Report summarises a batch run.
type Report struct {
	Prefix    string           `json:"prefix"`
	Total     int              `json:"total"`
	Rewritten int              `json:"rewritten"`
	Copied    int              `json:"copied"`
	Missing   int              `json:"missing"`
	Failed    int              `json:"failed"`
	Duplicate int              `json:"duplicate"`
	Documents []DocumentReport `json:"documents"`
}

// Batch rewrites every snapshot of a downloaded mirror with one shared
// engine.
type Batch struct {
	cfg    *Config
	engine *rewrite.Engine
	in     Storage
	out    Storage
	logger zerolog.Logger
}

// NewBatch prepares a batch run. in holds the mirror as laid out by
// URLToLocalPath; out receives the rewritten copies and the report.
func NewBatch(cfg *Config, engine *rewrite.Engine, in, out Storage, logger zerolog.Logger) *Batch {
	return &Batch{cfg: cfg, engine: engine, in: in, out: out, logger: logger}
}

// RewriteAll loads the CDX index named in the config and rewrites the
// mirror from the input directory into the output storage.
func RewriteAll(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Report, error) {
	entries, err := LoadCDXFile(cfg.Batch.Index)
	if err != nil {
		return nil, err
	}
	engine, err := cfg.NewEngine(&logger)
	if err != nil {
		return nil, err
	}
	out := cfg.Batch.Storage
	if out == nil {
		out = NewLocalStorage(cfg.Batch.Output)
	}
	b := NewBatch(cfg, engine, NewLocalStorage(cfg.Batch.Input), out, logger)
	if cfg.Batch.DryRun {
		// only the report reaches the output directory
		b.out = dryRunStorage{MemoryStorage: NewMemoryStorage(), report: out}
	}
	return b.Run(ctx, NewSnapshotIndexFromCDX(entries))
}

// Run rewrites every snapshot in idx concurrently and writes the report.
func (b *Batch) Run(ctx context.Context, idx *SnapshotIndex) (*Report, error) {
	manifest := idx.GetManifest()
	report := &Report{Prefix: b.cfg.Prefix, Total: len(manifest)}
	if len(manifest) == 0 {
		b.logger.Info().Msg("no snapshots in index")
		return report, b.writeReport(report)
	}
	b.logger.Info().Int("snapshots", len(manifest)).Msg("rewriting mirror")

	work, docs := b.claimPaths(manifest)

	threads := b.cfg.Batch.Threads
	if threads <= 0 {
		threads = 1
	}
	pool, err := ants.NewPool(threads)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var lim *rate.Limiter
	if b.cfg.Batch.MaxPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(b.cfg.Batch.MaxPerSecond), 1)
	}

	var prog *Progress
	if b.cfg.Batch.Progress {
		prog = NewRewriteProgress(len(work))
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, snap := range work {
		s := snap
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if lim != nil {
				if err := lim.Wait(gctx); err != nil {
					return err
				}
			}
			resCh := make(chan DocumentReport, 1)
			if err := pool.Submit(func() {
				resCh <- b.rewriteOne(s)
			}); err != nil {
				return fmt.Errorf("submit task: %w", err)
			}
			doc := <-resCh
			prog.Inc()

			mu.Lock()
			docs = append(docs, doc)
			mu.Unlock()

			if doc.Outcome == OutcomeFailed {
				b.logger.Warn().Str("url", doc.URL).Str("path", doc.Path).Str("error", doc.Error).Msg("rewrite failed")
				if b.cfg.Batch.StopOnError {
					return fmt.Errorf("rewrite %s: %s", doc.Path, doc.Error)
				}
			}
			return nil
		})
	}

	runErr := g.Wait()
	prog.Finish()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Path != docs[j].Path {
			return docs[i].Path < docs[j].Path
		}
		return docs[i].URL < docs[j].URL
	})
	report.Documents = docs
	for _, d := range docs {
		switch d.Outcome {
		case OutcomeRewritten:
			report.Rewritten++
		case OutcomeCopied:
			report.Copied++
		case OutcomeMissing:
			report.Missing++
		case OutcomeFailed:
			report.Failed++
		case OutcomeDuplicate:
			report.Duplicate++
		}
	}

	if err := b.writeReport(report); err != nil {
		return report, errors.Join(runErr, err)
	}
	if runErr != nil {
		return report, runErr
	}
	b.logger.Info().
		Int("rewritten", report.Rewritten).
		Int("copied", report.Copied).
		Int("missing", report.Missing).
		Int("failed", report.Failed).
		Int("duplicate", report.Duplicate).
		Msg("batch complete")
	return report, nil
}

// claimPaths assigns every mirror path to the newest snapshot stored
// under it. Different hosts can share a path because the mirror layout
// carries no host; the older snapshots are reported as duplicates.
func (b *Batch) claimPaths(manifest []Snapshot) ([]Snapshot, []DocumentReport) {
	owner := make(map[string]string, len(manifest))
	work := make([]Snapshot, 0, len(manifest))
	var docs []DocumentReport
	for _, snap := range manifest {
		p := URLToLocalPath(snap.FileURL, b.cfg.Batch.PrettyPath)
		if first, ok := owner[p]; ok {
			b.logger.Warn().Str("url", snap.FileURL).Str("path", p).Str("kept", first).Msg("mirror path already taken")
			docs = append(docs, DocumentReport{
				URL:       snap.FileURL,
				Path:      p,
				Timestamp: snap.Timestamp,
				Outcome:   OutcomeDuplicate,
				Error:     "mirror path shared with " + first,
			})
			continue
		}
		owner[p] = snap.FileURL
		work = append(work, snap)
	}
	return work, docs
}

// detectPath is the path used to pick a Rewriter: the URL path when it
// names a known type, since raw mirror paths carry the encoded query
// (main.css%3Fv=2) after the extension.
func detectPath(snap Snapshot, logicalPath string) string {
	if u, err := url.Parse(snap.FileURL); err == nil && path.Ext(u.Path) != "" {
		return u.Path
	}
	return logicalPath
}

// rewriteOne rewrites or copies a single snapshot. Failures are reported in
// the returned DocumentReport, never as a panic or partial output.
func (b *Batch) rewriteOne(snap Snapshot) DocumentReport {
	logicalPath := URLToLocalPath(snap.FileURL, b.cfg.Batch.PrettyPath)
	doc := DocumentReport{URL: snap.FileURL, Path: logicalPath, Timestamp: snap.Timestamp}

	if !b.in.Exists(logicalPath) {
		doc.Outcome = OutcomeMissing
		b.logger.Debug().Str("url", snap.FileURL).Str("path", logicalPath).Msg("not in mirror")
		return doc
	}
	src, err := b.in.Get(logicalPath)
	if err != nil {
		return failed(doc, err)
	}

	first := src
	if len(first) > 512 {
		first = first[:512]
	}
	rw := DetectRewriter(detectPath(snap, logicalPath), "", first)
	if rw == nil {
		if err := b.out.PutBytes(logicalPath, src); err != nil {
			return failed(doc, fmt.Errorf("store: %w", err))
		}
		doc.Outcome = OutcomeCopied
		doc.Digest = digest(src)
		return doc
	}

	out, stats, err := rw.Rewrite(b.engine, Document{
		URL:       snap.FileURL,
		Timestamp: snap.Timestamp,
		Prefix:    b.cfg.Prefix,
	}, src)
	if err != nil {
		return failed(doc, err)
	}
	if err := b.out.PutBytes(logicalPath, out); err != nil {
		return failed(doc, fmt.Errorf("store: %w", err))
	}
	doc.Outcome = OutcomeRewritten
	doc.Kind = rewriterKind(rw)
	doc.Stats = &stats
	doc.Digest = digest(out)
	return doc
}

func failed(doc DocumentReport, err error) DocumentReport {
	doc.Outcome = OutcomeFailed
	doc.Error = err.Error()
	return doc
}

func rewriterKind(rw Rewriter) string {
	switch rw.(type) {
	case CSSRewriter:
		return "css"
	default:
		return "html"
	}
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// dryRunStorage keeps documents in memory and passes the report through.
type dryRunStorage struct {
	*MemoryStorage
	report Storage
}

func (d dryRunStorage) PutBytes(path string, data []byte) error {
	if path == ReportFile {
		return d.report.PutBytes(path, data)
	}
	return d.MemoryStorage.PutBytes(path, data)
}

func (b *Batch) writeReport(r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := b.out.PutBytes(ReportFile, data); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
