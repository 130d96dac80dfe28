// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/donorfinder"
	"github.com/poiesic/donorfinder/core"
	"github.com/poiesic/donorfinder/indexer"
	"github.com/poiesic/donorfinder/ingestion"
	"github.com/poiesic/donorfinder/propublica"
	"github.com/poiesic/donorfinder/search"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "donorfinder",
		Usage: "Hybrid semantic and keyword search over nonprofit organizations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				EnvVars: []string{"DONORFINDER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides [storage])",
			},
			&cli.StringFlag{
				Name:  "embedding-provider",
				Usage: "Embedding provider: openai, onnx or mock (overrides [embedding])",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides [server].address)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search organizations from the command line",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Ranking mode: hybrid, semantic or keyword",
						Value: string(core.SearchModeHybrid),
					},
					&cli.StringFlag{
						Name:  "state",
						Usage: "Restrict to a state, replacing any state in the query",
					},
					&cli.StringFlag{
						Name:  "cause",
						Usage: "Restrict to a cause area code or term, replacing any cause in the query",
					},
					&cli.StringFlag{
						Name:  "org-type",
						Usage: "Restrict to an organization type: foundation, charity or nonprofit",
					},
					&cli.StringFlag{
						Name:  "filter",
						Usage: "CEL expression applied to candidates, e.g. 'city == \"Oakland\"'",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: search.DefaultLimit,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of results to skip",
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print each search stage to stderr",
					},
				},
			},
			{
				Name:   "index",
				Usage:  "Embed every organization whose searchable text is stale",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of organizations to process in each batch",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Number of texts sent to the embedder per call",
					},
					&cli.IntFlag{
						Name:  "pool-size",
						Usage: "Number of chunks embedded concurrently",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N organizations",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
					},
				},
			},
			{
				Name:   "import",
				Usage:  "Import organization records from a JSON file",
				Action: importCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "JSON array, JSON lines or registry API responses; - reads stdin",
						Value:   "-",
					},
				},
			},
			{
				Name:   "sync",
				Usage:  "Fetch organizations from the ProPublica Nonprofit Explorer API",
				Action: syncCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "query",
						Usage: "Full text query",
					},
					&cli.StringFlag{
						Name:  "state",
						Usage: "Two letter state code",
					},
					&cli.IntFlag{
						Name:  "ntee",
						Usage: "NTEE major group (1-10)",
					},
					&cli.IntFlag{
						Name:  "subsection",
						Usage: "501(c) subsection code",
					},
					&cli.IntFlag{
						Name:  "max",
						Usage: "Maximum number of organizations to fetch",
						Value: 100,
					},
					&cli.StringFlag{
						Name:  "base-url",
						Usage: "API base URL",
						Value: propublica.DefaultBaseURL,
					},
				},
			},
		},
	}
}

// loadConfig reads --config, or the defaults without one, and applies the
// global overrides.
func loadConfig(c *cli.Context) (*donorfinder.Config, error) {
	cfg := donorfinder.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = donorfinder.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if db := c.String("db"); db != "" {
		cfg.Storage.Driver = donorfinder.DriverBadger
		cfg.Storage.Path = db
		cfg.Storage.InMemory = false
	}
	if provider := c.String("embedding-provider"); provider != "" {
		cfg.Embedding.Provider = provider
	}
	return cfg, nil
}

func openDatabase(c *cli.Context, cfg *donorfinder.Config) (*donorfinder.Database, error) {
	db, err := donorfinder.NewDatabase(c.Context, cfg, donorfinder.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("addr") {
		cfg.Server.Address = c.String("addr")
	}

	db, err := openDatabase(c, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	idx, err := db.NewIndexer()
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}
	defer idx.Release()

	searcher, err := db.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	server, err := db.NewServer(searcher, idx)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx, cfg.Server.Address)
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a search query is required")
	}
	mode, err := core.ParseSearchMode(c.String("mode"))
	if err != nil {
		return fmt.Errorf("%w: %q", err, c.String("mode"))
	}
	orgType, err := core.ParseOrgType(c.String("org-type"))
	if err != nil {
		return fmt.Errorf("%w: %q", err, c.String("org-type"))
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	req := search.Request{
		Query:  query,
		Mode:   mode,
		Limit:  c.Int("limit"),
		Offset: c.Int("offset"),
		Overrides: search.Overrides{
			State:     c.String("state"),
			CauseArea: c.String("cause"),
			OrgType:   orgType,
		},
		Filter:  c.String("filter"),
		Timeout: cfg.Search.Timeout,
	}

	var monitor search.SearchMonitor
	if c.Bool("explain") {
		monitor = newExplainMonitor(c.App.ErrWriter)
	}
	resp, err := searcher.SearchWithMonitor(c.Context, req, monitor)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	printResults(c.App.Writer, resp)
	if resp.Degraded {
		fmt.Fprintln(c.App.ErrWriter, "warning: embedding unavailable, results ranked by keywords only")
	}
	if resp.Partial {
		fmt.Fprintln(c.App.ErrWriter, "warning: search timed out, results are partial")
	}
	return nil
}

func printResults(w io.Writer, resp *search.Response) {
	fmt.Fprintf(w, "Found %d results (%s)\n", len(resp.Results), resp.Mode)
	for _, r := range resp.Results {
		org := r.Organization
		location := org.State
		if org.City != "" {
			location = org.City + ", " + org.State
		}
		fmt.Fprintf(w, "%3d. %s [%s] %s %s %s score=%.3f%s\n",
			r.Rank, org.Name, org.StrEIN, location, org.NTEECode, org.OrgType, r.FinalScore, scoreDetail(r))
	}
}

func scoreDetail(r *core.SearchResult) string {
	var parts []string
	if r.SemanticScore != nil {
		parts = append(parts, fmt.Sprintf("semantic=%.3f", *r.SemanticScore))
	}
	if r.KeywordScore != nil {
		parts = append(parts, fmt.Sprintf("keyword=%.3f", *r.KeywordScore))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, " ") + ")"
}

func indexCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("batch-size") {
		cfg.Indexing.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("chunk-size") {
		cfg.Indexing.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("pool-size") {
		cfg.Indexing.PoolSize = c.Int("pool-size")
	}
	if c.IsSet("report-interval") {
		cfg.Indexing.ReportInterval = c.Int("report-interval")
	}
	if c.IsSet("max-retries") {
		cfg.Indexing.MaxRetries = c.Int("max-retries")
	}
	if c.IsSet("retry-delay") {
		cfg.Indexing.RetryDelay = c.Duration("retry-delay")
	}

	db, err := openDatabase(c, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	idx, err := db.NewIndexer(indexer.WithProgress(c.App.ErrWriter))
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}
	defer idx.Release()

	if _, err := idx.Run(c.Context); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

func importCommand(c *cli.Context) error {
	var r io.Reader = os.Stdin
	if path := c.String("file"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	records, err := ingestion.DecodeRecords(r)
	if err != nil {
		return fmt.Errorf("failed to decode records: %w", err)
	}
	return ingest(c, records)
}

func syncCommand(c *cli.Context) error {
	client := propublica.NewClient(
		propublica.WithBaseURL(c.String("base-url")),
		propublica.WithLogger(slog.Default()),
	)
	params := propublica.SearchParams{
		Query:      c.String("query"),
		State:      strings.ToUpper(c.String("state")),
		NTEE:       c.Int("ntee"),
		Subsection: c.Int("subsection"),
	}

	records, err := client.Collect(c.Context, params, c.Int("max"))
	if err != nil {
		return fmt.Errorf("failed to fetch organizations: %w", err)
	}
	fmt.Fprintf(c.App.ErrWriter, "Fetched %d organizations\n", len(records))
	return ingest(c, records)
}

// ingest stores records and embeds the ones that changed before returning.
func ingest(c *cli.Context, records []*core.Organization) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	idx, err := db.NewIndexer()
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}
	defer idx.Release()

	pipeline, err := db.NewIngestionPipeline(idx)
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	res, err := pipeline.Ingest(c.Context, records)
	pipeline.Release()
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Imported %d of %d records (%d rejected, %d queued for indexing)\n",
		res.Stored, res.Received, res.Rejected, res.Queued)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
