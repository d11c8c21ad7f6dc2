// Package main is the ragcore CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/ragcore/internal/cli"
	"github.com/hyperjump/ragcore/internal/config"
	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/internal/rag"
	"github.com/hyperjump/ragcore/internal/server"
	"github.com/hyperjump/ragcore/internal/watcher"
	"github.com/hyperjump/ragcore/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/ragcore/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// errUsage marks errors already explained by printed usage.
var errUsage = errors.New("usage")

// loadConfig loads config from path. For the default path, config.yaml in the
// current directory wins when present; with neither file the built-in
// defaults are used. The returned path is the file actually loaded, or "".
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		fallback := filepath.Join(cwd, "config.yaml")
		if _, err := os.Stat(fallback); err == nil {
			cfg, err := config.Load(fallback)
			return cfg, fallback, err
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg, err := config.LoadDefault(cwd)
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	cmds := map[string]func([]string, io.Writer) error{
		"server":  runServer,
		"search":  runSearch,
		"context": runContext,
		"index":   runIndex,
		"remove":  runRemove,
		"stats":   runStats,
		"watch":   runWatch,
		"init":    runInit,
	}
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "ragcore version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	}
	cmd, ok := cmds[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
	if err := cmd(args[1:], stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "%s failed: %v\n", args[0], err)
		}
		return 1
	}
	return 0
}

func runServer(args []string, _ io.Writer) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := rag.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	if _, err := p.Init(ctx); err != nil {
		return err
	}

	opts := []server.Option{server.WithConfigPath(resolvedConfigPath)}
	if cfg.Watch.Enabled {
		w := newWatcher(ctx, p, cfg, logger)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer w.Stop()
		opts = append(opts, server.WithWatch(w))
	}

	srv := server.NewServer(p, cfg, logger, opts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// newWatcher keeps p in step with the configured roots.
func newWatcher(ctx context.Context, p *rag.Pipeline, cfg *config.Config, logger *zap.Logger) *watcher.Watcher {
	return watcher.NewWatcher(
		p.Roots(),
		p.Accepts,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if _, err := p.AddDocument(ctx, models.DocumentInput{Path: path}); err != nil {
				logger.Warn("watch index file failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			p.RemovePath(ctx, path)
		},
		watcher.WithLogger(logger),
		watcher.WithDebounce(cfg.Watch.Debounce),
	)
}

// buildQuery joins positional args so multi-word queries work with or
// without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that follow the query to the front so flag.Parse
// sees them; the flag package stops at the first positional argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseFormat(s string) (cli.OutputFormat, error) {
	switch s {
	case "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// queryFlags are shared by search and context.
type queryFlags struct {
	fs         *flag.FlagSet
	configPath *string
	serverURL  *string
	topK       *int
	minScore   *float64
	output     *string
}

func newQueryFlags(name string) *queryFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	q := &queryFlags{
		fs:         fs,
		configPath: fs.String("config", defaultConfigPath, "config file path (local mode)"),
		serverURL:  fs.String("server", defaultServerURL, `server URL; "" builds the index locally`),
		topK:       fs.Int("top-k", 0, "number of chunks (0 = config default)"),
		minScore:   fs.Float64("min-score", 0, "minimum chunk score (config default when unset)"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ragcore %s [flags] <query>\n\n", name)
		fs.PrintDefaults()
	}
	return q
}

func (q *queryFlags) parse(args []string) (models.SearchQuery, cli.OutputFormat, error) {
	if err := q.fs.Parse(argsReorder(args)); err != nil {
		return models.SearchQuery{}, "", err
	}
	text := buildQuery(q.fs.Args())
	if text == "" {
		q.fs.Usage()
		return models.SearchQuery{}, "", errUsage
	}
	format, err := parseFormat(*q.output)
	if err != nil {
		return models.SearchQuery{}, "", err
	}
	query := models.SearchQuery{Query: text, TopK: *q.topK}
	q.fs.Visit(func(f *flag.Flag) {
		if f.Name == "min-score" {
			query.MinScore = q.minScore
		}
	})
	return query, format, nil
}

func runSearch(args []string, out io.Writer) error {
	q := newQueryFlags("search")
	query, format, err := q.parse(args)
	if err != nil {
		return err
	}
	var res models.SearchResult
	if *q.serverURL != "" {
		if err := newAPIClient(*q.serverURL).post("/api/v1/search", query, http.StatusOK, &res); err != nil {
			return err
		}
	} else {
		err := withLocalPipeline(*q.configPath, func(ctx context.Context, p *rag.Pipeline) error {
			r, err := p.Search(ctx, query)
			if err != nil {
				return err
			}
			res = *r
			return nil
		})
		if err != nil {
			return err
		}
	}
	return cli.WriteSearchResults(out, &res, format)
}

func runContext(args []string, out io.Writer) error {
	q := newQueryFlags("context")
	query, format, err := q.parse(args)
	if err != nil {
		return err
	}
	var rc models.RAGContext
	if *q.serverURL != "" {
		if err := newAPIClient(*q.serverURL).post("/api/v1/context", query, http.StatusOK, &rc); err != nil {
			return err
		}
	} else {
		err := withLocalPipeline(*q.configPath, func(ctx context.Context, p *rag.Pipeline) error {
			r, err := p.Retrieve(ctx, query)
			if err != nil {
				return err
			}
			rc = *r
			return nil
		})
		if err != nil {
			return err
		}
	}
	return cli.WriteContext(out, &rc, format)
}

// withLocalPipeline builds a pipeline from the config at configPath, indexes
// the configured roots and runs fn against it.
func withLocalPipeline(configPath string, fn func(context.Context, *rag.Pipeline) error) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	p, err := rag.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	if _, err := p.Init(ctx); err != nil {
		return err
	}
	return fn(ctx, p)
}

func runIndex(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(fs.Output(), "Usage: ragcore index [flags] <file-or-directory>")
		return errUsage
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	var resp struct {
		ID      string `json:"id"`
		Indexed *int   `json:"indexed"`
	}
	if err := newAPIClient(*serverURL).post("/api/v1/documents", models.DocumentInput{Path: path}, http.StatusCreated, &resp); err != nil {
		return err
	}
	if resp.Indexed != nil {
		fmt.Fprintf(out, "Indexed %d file(s) from %s\n", *resp.Indexed, path)
		return nil
	}
	fmt.Fprintf(out, "Document indexed: %s (%s)\n", path, resp.ID)
	return nil
}

func runRemove(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(fs.Output(), "Usage: ragcore remove [flags] <file-or-directory>")
		return errUsage
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	var resp struct {
		Removed int `json:"removed"`
	}
	if err := newAPIClient(*serverURL).delete("/api/v1/documents", path, &resp); err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %d document(s) under %s\n", resp.Removed, path)
	return nil
}

func runStats(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (local mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL; "" builds the index locally`)
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	format, err := parseFormat(*output)
	if err != nil {
		return err
	}
	var st models.Stats
	if *serverURL != "" {
		if err := newAPIClient(*serverURL).get("/api/v1/stats", &st); err != nil {
			return err
		}
	} else {
		err := withLocalPipeline(*configPath, func(_ context.Context, p *rag.Pipeline) error {
			st = p.Stats()
			return nil
		})
		if err != nil {
			return err
		}
	}
	return cli.WriteStats(out, st, format)
}

func runWatch(args []string, out io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(out, "Usage: ragcore watch <add|remove|list> [path]")
		return errUsage
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	purge := fs.Bool("purge", false, "remove: also drop the indexed documents under the path")
	if err := fs.Parse(argsReorder(args[1:])); err != nil {
		return err
	}
	api := newAPIClient(*serverURL)
	switch sub {
	case "list":
		var resp struct {
			Directories []string `json:"directories"`
		}
		if err := api.get("/api/v1/watch/directories", &resp); err != nil {
			return err
		}
		for _, d := range resp.Directories {
			fmt.Fprintln(out, d)
		}
		return nil
	case "add", "remove":
		if fs.NArg() < 1 {
			fmt.Fprintf(out, "Usage: ragcore watch %s <path>\n", sub)
			return errUsage
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			return err
		}
		if sub == "add" {
			body := map[string]any{"path": path, "sync": true}
			if err := api.post("/api/v1/watch/directories", body, http.StatusCreated, nil); err != nil {
				return err
			}
			fmt.Fprintf(out, "Added: %s\n", path)
			return nil
		}
		target := "/api/v1/watch/directories"
		if *purge {
			target += "?purge=true"
		}
		if err := api.delete(target, path, nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed: %s\n", path)
		return nil
	}
	return fmt.Errorf("unknown watch subcommand %q", sub)
}

func runInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("config", "config.yaml", "where to write the config")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *path)
	}
	cfg := config.Default()
	cfg.RAG.Paths = fs.Args()
	if err := config.Save(*path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", *path)
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `ragcore - retrieval-augmented context for local documents

Usage:
  ragcore server [flags]                  Start the HTTP API (and the watcher when enabled)
  ragcore search [flags] <query>          Search the corpus
  ragcore context [flags] <query>         Retrieve the context block for a query
  ragcore index [flags] <path>            Index a file or directory on the server
  ragcore remove [flags] <path>           Remove a file or directory from the server index
  ragcore stats [flags]                   Show index and embedding counters
  ragcore watch <add|remove|list> [path]  Manage watched directories
  ragcore init [flags] [roots...]         Write a default config file
  ragcore version                         Show version
  ragcore help                            Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/ragcore/config.yaml, or ./config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to build the index locally.
  --output string    Output format: text or json (default: text)

Search/Context Flags:
  --top-k int        Number of chunks (default from config)
  --min-score float  Minimum chunk score (default from config)

Examples:
  ragcore server --debug
  ragcore search "conditional probability"
  ragcore context --output json bayes theorem
  ragcore search --server "" --config ./config.yaml chunk overlap
  ragcore index ./docs
  ragcore watch add /path/to/docs
`)
}
