package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sigman78/wayback-rewrite/internal/wayback"
)

// usageError marks command line mistakes, which exit with code 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type rootOptions struct {
	configFile    string
	logLevel      string
	debug         bool
	prefix        string
	rules         []string
	noDefaults    bool
	noUnescape    bool
	caseSensitive bool

	logger zerolog.Logger
}

// config loads the config file, if any, and applies command line overrides.
func (o *rootOptions) config(cmd *cobra.Command) (*wayback.Config, error) {
	cfg := wayback.DefaultConfig()
	if o.configFile != "" {
		var err error
		if cfg, err = wayback.LoadConfig(o.configFile); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("prefix") {
		cfg.Prefix = o.prefix
	}
	cfg.Rules = append(cfg.Rules, o.rules...)
	if flags.Changed("no-default-rules") {
		cfg.DefaultRulesDisabled = o.noDefaults
	}
	if flags.Changed("no-unescape") {
		cfg.UnescapeAttributeValues = !o.noUnescape
	}
	if flags.Changed("case-sensitive-values") {
		cfg.CaseSensitiveValues = o.caseSensitive
	}
	return cfg, nil
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "wayback-rewrite",
		Short: "Rewrite archived pages so every reference goes through a replay service.",
		Long: `wayback-rewrite rewrites archived HTML and CSS so that links, images,
stylesheets, scripts and frames resolve through a web archive replay
service instead of the live web. Markup outside the rewritten URLs is
left byte for byte as it was captured.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := zerolog.ParseLevel(opts.logLevel)
			if err != nil {
				return &usageError{fmt.Errorf("invalid --log-level %q", opts.logLevel)}
			}
			if opts.debug {
				level = zerolog.DebugLevel
			}
			opts.logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}).
				Level(level).With().Timestamp().Logger()
			return nil
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "YAML config file")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVar(&opts.debug, "debug", false, "shorthand for --log-level debug")
	pf.StringVar(&opts.prefix, "prefix", "", "replay URL prefix, e.g. http://replay.archive.org/")
	pf.StringArrayVar(&opts.rules, "rule", nil, "extra rewrite rule TAG[ATTR=value].TARGET.type = kind (repeatable)")
	pf.BoolVar(&opts.noDefaults, "no-default-rules", false, "disable the built-in rewrite rules")
	pf.BoolVar(&opts.noUnescape, "no-unescape", false, "do not decode character references in attribute values")
	pf.BoolVar(&opts.caseSensitive, "case-sensitive-values", false, "compare rule predicate values case-sensitively")

	root.AddCommand(newPageCmd(opts), newBatchCmd(opts), newVersionCmd())
	return root
}

func newPageCmd(opts *rootOptions) *cobra.Command {
	var (
		baseURL   string
		timestamp string
		index     string
		charset   string
		css       bool
		output    string
	)
	cmd := &cobra.Command{
		Use:   "page [file]",
		Short: "Rewrite one document to stdout (reads stdin without a file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				return &usageError{errors.New("--base-url is required")}
			}
			base, err := wayback.NormalizeBaseURL(baseURL)
			if err != nil {
				return &usageError{fmt.Errorf("invalid --base-url: %w", err)}
			}
			if index != "" {
				entries, err := wayback.LoadCDXFile(index)
				if err != nil {
					return err
				}
				timestamp = wayback.NewSnapshotIndexFromCDX(entries).Resolve(base.CanonicalURL, timestamp)
			}
			if timestamp == "" {
				return &usageError{errors.New("--timestamp is required unless --index knows the page")}
			}

			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			engine, err := cfg.NewEngine(&opts.logger)
			if err != nil {
				return err
			}

			src, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			var rw wayback.Rewriter = wayback.HTMLRewriter{}
			contentType := "text/html"
			if css {
				rw = wayback.CSSRewriter{}
				contentType = "text/css"
			}
			if charset != "" {
				contentType += "; charset=" + charset
			}

			out, stats, err := rw.Rewrite(engine, wayback.Document{
				URL:         base.CanonicalURL,
				Timestamp:   timestamp,
				Prefix:      cfg.Prefix,
				ContentType: contentType,
			}, src)
			if err != nil {
				return err
			}
			opts.logger.Debug().
				Str("url", base.CanonicalURL).
				Int("rewritten", stats.Rewritten).
				Int("unresolved", stats.Unresolved).
				Int("suppressed", stats.Suppressed).
				Msg("document rewritten")

			if output != "" {
				return os.WriteFile(output, out, 0600)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&baseURL, "base-url", "", "original URL of the document")
	f.StringVar(&timestamp, "timestamp", "", "capture timestamp, e.g. 20010101000000")
	f.StringVar(&index, "index", "", "CDX JSON index used to look up the timestamp")
	f.StringVar(&charset, "charset", "", "document charset (detected when empty)")
	f.BoolVar(&css, "css", false, "treat the input as a stylesheet")
	f.StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var (
		index        string
		input        string
		output       string
		threads      int
		prettyPath   bool
		stopOnError  bool
		maxPerSecond float64
		dryRun       bool
		noProgress   bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Rewrite a downloaded mirror using its CDX index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			b := &cfg.Batch
			if f.Changed("index") {
				b.Index = index
			}
			if f.Changed("input") {
				b.Input = input
			}
			if f.Changed("output") {
				b.Output = output
			}
			if f.Changed("threads") {
				b.Threads = threads
			}
			if f.Changed("pretty-path") {
				b.PrettyPath = prettyPath
			}
			if f.Changed("stop-on-error") {
				b.StopOnError = stopOnError
			}
			if f.Changed("max-per-second") {
				b.MaxPerSecond = maxPerSecond
			}
			if f.Changed("dry-run") {
				b.DryRun = dryRun
			}
			b.Progress = !noProgress

			if b.Index == "" || b.Input == "" || b.Output == "" {
				return &usageError{errors.New("--index, --input and --output are required")}
			}
			if err := cfg.Validate(); err != nil {
				return &usageError{err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			report, err := wayback.RewriteAll(ctx, cfg, opts.logger)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				opts.logger.Warn().Int("failed", report.Failed).Msg("some documents could not be rewritten")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&index, "index", "", "CDX JSON index of the mirror")
	f.StringVar(&input, "input", "", "mirror directory")
	f.StringVar(&output, "output", "", "directory receiving rewritten documents")
	f.IntVar(&threads, "threads", 3, "concurrent rewrite workers")
	f.BoolVar(&prettyPath, "pretty-path", false, "the mirror uses pretty paths (dir/index.html)")
	f.BoolVar(&stopOnError, "stop-on-error", false, "stop at the first failed document")
	f.Float64Var(&maxPerSecond, "max-per-second", 0, "documents per second, 0 for unlimited")
	f.BoolVar(&dryRun, "dry-run", false, "rewrite in memory and only write the report")
	f.BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wayback-rewrite %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
