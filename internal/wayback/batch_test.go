package wayback

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

// failingStorage is a MemoryStorage whose Get fails for one path.
type failingStorage struct {
	*MemoryStorage
	failPath string
}

func (f failingStorage) Get(path string) ([]byte, error) {
	if path == f.failPath {
		return nil, errors.New("disk on fire")
	}
	return f.MemoryStorage.Get(path)
}

func testMirror(t *testing.T) (*MemoryStorage, *SnapshotIndex) {
	t.Helper()
	in := NewMemoryStorage()
	files := map[string]string{
		"index.html": `<a href="/style.css">css</a>`,
		"style.css":  `body{background:url(bg.png)}`,
		"logo.png":   "\x89PNG\r\n\x1a\n",
	}
	for p, body := range files {
		if err := in.PutBytes(p, []byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	idx := NewSnapshotIndex()
	idx.Register("http://example.com/", "20010101000000")
	idx.Register("http://example.com/style.css", "20010101000001")
	idx.Register("http://example.com/logo.png", "20010101000002")
	idx.Register("http://example.com/gone.html", "20010101000003")
	return in, idx
}

func testBatchConfig() *Config {
	cfg := DefaultConfig()
	cfg.Prefix = "http://replay/"
	cfg.Batch.MaxPerSecond = 1000
	return cfg
}

func readReport(t *testing.T, s Storage) Report {
	t.Helper()
	data, err := s.Get(ReportFile)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestBatchRun(t *testing.T) {
	in, idx := testMirror(t)
	out := NewMemoryStorage()
	cfg := testBatchConfig()
	engine, err := cfg.NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}

	report, err := NewBatch(cfg, engine, in, out, zerolog.Nop()).Run(context.Background(), idx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 4 || report.Rewritten != 2 || report.Copied != 1 || report.Missing != 1 || report.Failed != 0 {
		t.Errorf("unexpected counts %+v", report)
	}

	page, err := out.Get("index.html")
	if err != nil {
		t.Fatal(err)
	}
	if want := `<a href="http://replay/20010101000000/http://example.com/style.css">css</a>`; string(page) != want {
		t.Errorf("index.html\n  got  %s\n  want %s", page, want)
	}
	css, err := out.Get("style.css")
	if err != nil {
		t.Fatal(err)
	}
	if want := `body{background:url(http://replay/20010101000001im_/http://example.com/bg.png)}`; string(css) != want {
		t.Errorf("style.css\n  got  %s\n  want %s", css, want)
	}
	logo, err := out.Get("logo.png")
	if err != nil {
		t.Fatal(err)
	}
	if string(logo) != "\x89PNG\r\n\x1a\n" {
		t.Error("binary resource altered")
	}

	onDisk := readReport(t, out)
	if len(onDisk.Documents) != 4 {
		t.Fatalf("expected 4 report lines, got %d", len(onDisk.Documents))
	}
	wantOrder := []struct{ path, outcome string }{
		{"gone.html", OutcomeMissing},
		{"index.html", OutcomeRewritten},
		{"logo.png", OutcomeCopied},
		{"style.css", OutcomeRewritten},
	}
	for i, w := range wantOrder {
		d := onDisk.Documents[i]
		if d.Path != w.path || d.Outcome != w.outcome {
			t.Errorf("document %d = %s/%s, want %s/%s", i, d.Path, d.Outcome, w.path, w.outcome)
		}
	}
	if d := onDisk.Documents[1]; d.Kind != "html" || d.Stats == nil || d.Stats.Rewritten != 1 || d.Digest != digest(page) {
		t.Errorf("index.html report line %+v", d)
	}
	if d := onDisk.Documents[3]; d.Kind != "css" || d.Digest != digest(css) {
		t.Errorf("style.css report line %+v", d)
	}
	if d := onDisk.Documents[2]; d.Digest != digest(logo) || d.Stats != nil {
		t.Errorf("logo.png report line %+v", d)
	}
}

func TestBatchRunRecordsFailures(t *testing.T) {
	mem, idx := testMirror(t)
	in := failingStorage{MemoryStorage: mem, failPath: "style.css"}
	out := NewMemoryStorage()
	cfg := testBatchConfig()
	engine, err := cfg.NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}

	report, err := NewBatch(cfg, engine, in, out, zerolog.Nop()).Run(context.Background(), idx)
	if err != nil {
		t.Fatalf("failures should be reported, not returned: %v", err)
	}
	if report.Failed != 1 || report.Rewritten != 1 {
		t.Errorf("unexpected counts %+v", report)
	}
	if out.Exists("style.css") {
		t.Error("failed document must not produce output")
	}
	for _, d := range report.Documents {
		if d.Path == "style.css" && d.Error == "" {
			t.Error("failure reason missing from report")
		}
	}
}

func TestBatchRunStopOnError(t *testing.T) {
	mem, idx := testMirror(t)
	in := failingStorage{MemoryStorage: mem, failPath: "style.css"}
	out := NewMemoryStorage()
	cfg := testBatchConfig()
	cfg.Batch.StopOnError = true
	cfg.Batch.Threads = 1
	engine, err := cfg.NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}

	report, err := NewBatch(cfg, engine, in, out, zerolog.Nop()).Run(context.Background(), idx)
	if err == nil {
		t.Fatal("expected error with stopOnError")
	}
	if report == nil || report.Failed != 1 {
		t.Errorf("expected the failure in the report, got %+v", report)
	}
	if !out.Exists(ReportFile) {
		t.Error("report must be written even when stopping early")
	}
}

func TestBatchRunEmptyIndex(t *testing.T) {
	out := NewMemoryStorage()
	cfg := testBatchConfig()
	engine, err := cfg.NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	report, err := NewBatch(cfg, engine, NewMemoryStorage(), out, zerolog.Nop()).Run(context.Background(), NewSnapshotIndex())
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 0 || !out.Exists(ReportFile) {
		t.Errorf("expected an empty report, got %+v", report)
	}
}

func TestBatchRunCancelled(t *testing.T) {
	in, idx := testMirror(t)
	cfg := testBatchConfig()
	engine, err := cfg.NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = NewBatch(cfg, engine, in, NewMemoryStorage(), zerolog.Nop()).Run(ctx, idx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func writeMirror(t *testing.T) (index, input string) {
	t.Helper()
	dir := t.TempDir()
	input = filepath.Join(dir, "mirror")
	if err := os.MkdirAll(input, 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(input, "index.html"), []byte(`<img src="a.gif">`), 0600); err != nil {
		t.Fatal(err)
	}
	index = filepath.Join(dir, "cdx.json")
	cdx := `[["timestamp","original"],["20010101000000","http://example.com/"]]`
	if err := os.WriteFile(index, []byte(cdx), 0600); err != nil {
		t.Fatal(err)
	}
	return index, input
}

func TestRewriteAll(t *testing.T) {
	index, input := writeMirror(t)
	out := NewMemoryStorage()
	cfg := testBatchConfig()
	cfg.Batch.Index = index
	cfg.Batch.Input = input
	cfg.Batch.Storage = out

	report, err := RewriteAll(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if report.Rewritten != 1 {
		t.Errorf("unexpected counts %+v", report)
	}
	got, err := out.Get("index.html")
	if err != nil {
		t.Fatal(err)
	}
	if want := `<img src="http://replay/20010101000000im_/http://example.com/a.gif">`; string(got) != want {
		t.Errorf("index.html\n  got  %s\n  want %s", got, want)
	}
}

func TestRewriteAllDryRun(t *testing.T) {
	index, input := writeMirror(t)
	out := NewMemoryStorage()
	cfg := testBatchConfig()
	cfg.Batch.Index = index
	cfg.Batch.Input = input
	cfg.Batch.Storage = out
	cfg.Batch.DryRun = true

	report, err := RewriteAll(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if report.Rewritten != 1 {
		t.Errorf("unexpected counts %+v", report)
	}
	if out.Exists("index.html") {
		t.Error("dry run wrote a document")
	}
	if out.Len() != 1 || readReport(t, out).Rewritten != 1 {
		t.Error("dry run must still write the report")
	}
}

func TestRewriteAllMissingIndex(t *testing.T) {
	cfg := testBatchConfig()
	cfg.Batch.Index = filepath.Join(t.TempDir(), "missing.json")
	if _, err := RewriteAll(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for missing index")
	}
}

// A versioned stylesheet is stored as main.css%3Fv=2 in the raw layout;
// its type still comes from the URL, so it is rewritten, not copied.
func TestBatchRunVersionedStylesheet(t *testing.T) {
	const cssURL = "http://example.com/main.css?v=2"
	in := NewMemoryStorage()
	stored := URLToLocalPath(cssURL, false)
	if stored != "main.css%3Fv=2" {
		t.Fatalf("unexpected mirror path %q", stored)
	}
	if err := in.PutBytes(stored, []byte(`body{background:url(bg.png)}`)); err != nil {
		t.Fatal(err)
	}
	idx := NewSnapshotIndex()
	idx.Register(cssURL, "20010101000000")

	out := NewMemoryStorage()
	cfg := testBatchConfig()
	engine, err := cfg.NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	report, err := NewBatch(cfg, engine, in, out, zerolog.Nop()).Run(context.Background(), idx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Rewritten != 1 || report.Copied != 0 {
		t.Fatalf("unexpected counts %+v", report)
	}
	if d := report.Documents[0]; d.Kind != "css" {
		t.Errorf("kind %q, want css", d.Kind)
	}
	got, err := out.Get(stored)
	if err != nil {
		t.Fatal(err)
	}
	if want := `body{background:url(http://replay/20010101000000im_/http://example.com/bg.png)}`; string(got) != want {
		t.Errorf("main.css\n  got  %s\n  want %s", got, want)
	}
}

// Two hosts whose files land on the same mirror path: the newest snapshot
// owns the path, the other one is reported as a duplicate.
func TestBatchRunSharedMirrorPath(t *testing.T) {
	in := NewMemoryStorage()
	if err := in.PutBytes("a.css", []byte(`a{background:url(x.png)}`)); err != nil {
		t.Fatal(err)
	}
	idx := NewSnapshotIndex()
	idx.Register("http://example.com/a.css", "20010101000000")
	idx.Register("http://cdn.example.com/a.css", "20050101000000")

	out := NewMemoryStorage()
	cfg := testBatchConfig()
	engine, err := cfg.NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	report, err := NewBatch(cfg, engine, in, out, zerolog.Nop()).Run(context.Background(), idx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 2 || report.Rewritten != 1 || report.Duplicate != 1 {
		t.Fatalf("unexpected counts %+v", report)
	}
	for _, d := range report.Documents {
		switch d.URL {
		case "http://cdn.example.com/a.css":
			if d.Outcome != OutcomeRewritten {
				t.Errorf("newest snapshot outcome %q", d.Outcome)
			}
		case "http://example.com/a.css":
			if d.Outcome != OutcomeDuplicate || d.Error == "" {
				t.Errorf("older snapshot %+v", d)
			}
		}
	}
	got, err := out.Get("a.css")
	if err != nil {
		t.Fatal(err)
	}
	if want := `a{background:url(http://replay/20050101000000im_/http://cdn.example.com/x.png)}`; string(got) != want {
		t.Errorf("a.css\n  got  %s\n  want %s", got, want)
	}
}
