package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/OFFIS-RIT/graphsync/internal/ingest"
	"github.com/OFFIS-RIT/graphsync/internal/queue"
	"github.com/OFFIS-RIT/graphsync/internal/storage"
	"github.com/OFFIS-RIT/graphsync/internal/util"
	"github.com/OFFIS-RIT/graphsync/pkg/loader"
	"github.com/OFFIS-RIT/graphsync/pkg/loader/doc"
	lio "github.com/OFFIS-RIT/graphsync/pkg/loader/io"
	ls3 "github.com/OFFIS-RIT/graphsync/pkg/loader/s3"
	"github.com/OFFIS-RIT/graphsync/pkg/loader/web"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"
	"github.com/OFFIS-RIT/graphsync/pkg/logger/console"
	pgstore "github.com/OFFIS-RIT/graphsync/pkg/store/pgx"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/urfave/cli/v2"
)

func main() {
	util.LoadEnv()

	app := &cli.App{
		Name:  "ingest",
		Usage: "Add documents to a graph for the consistency driver to process",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "graph",
				Aliases:  []string{"g"},
				Usage:    "Graph to add documents to",
				EnvVars:  []string{"GRAPH_NAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:  "ctype",
				Usage: "Chunker for every document (character, regex, semantic, markdown, token)",
			},
			&cli.BoolFlag{
				Name:  "replace",
				Usage: "Re-process documents that already exist",
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "Request a sync pass once the documents are stored",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Number of sources loaded at once",
				Value: 4,
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				EnvVars: []string{"DEBUG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "file",
				Usage:     "Ingest local files or directories",
				ArgsUsage: "<path>...",
				Action:    fileCommand,
			},
			{
				Name:      "url",
				Usage:     "Ingest web pages",
				ArgsUsage: "<url>...",
				Action:    urlCommand,
			},
			{
				Name:   "s3",
				Usage:  "Ingest objects from an S3 bucket",
				Action: s3Command,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "bucket",
						Usage:   "Bucket to read from",
						EnvVars: []string{"AWS_BUCKET"},
					},
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Only ingest keys starting with prefix",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("Ingest failed", "err", err)
		os.Exit(1)
	}
}

func setupLogger(c *cli.Context) error {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  c.Bool("debug"),
		JSON:   util.GetEnvBool("LOG_JSON", false),
		Prefix: "ingest",
	}))
	return nil
}

func fileCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one path is required")
	}

	// resolve against / so relative and absolute arguments share one fs.FS
	roots := make([]string, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		roots = append(roots, strings.TrimPrefix(filepath.ToSlash(abs), "/"))
	}
	files, err := collectFiles(os.DirFS("/"), roots)
	if err != nil {
		return fmt.Errorf("failed to collect files: %w", err)
	}

	l := doc.NewDocLoader(lio.NewFileLoader())
	sources := make([]loader.Source, 0, len(files))
	for _, f := range files {
		sources = append(sources, newSource(idFromPath(f), "/"+f, c.String("ctype"), l))
	}
	return ingestSources(c, sources)
}

func urlCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one url is required")
	}

	l := web.NewWebLoader(nil)
	sources := make([]loader.Source, 0, c.NArg())
	for _, u := range c.Args().Slice() {
		sources = append(sources, newSource(idFromURL(u), u, c.String("ctype"), l))
	}
	return ingestSources(c, sources)
}

func s3Command(c *cli.Context) error {
	bucket := c.String("bucket")
	if bucket == "" {
		return fmt.Errorf("bucket is required")
	}

	client, err := storage.NewS3Client(c.Context)
	if err != nil {
		return err
	}
	keys, err := storage.ListKeys(c.Context, client, bucket, c.String("prefix"))
	if err != nil {
		return err
	}

	l := doc.NewDocLoader(ls3.NewS3LoaderWithClient(bucket, client))
	sources := make([]loader.Source, 0, len(keys))
	for _, key := range keys {
		if !supported(key) {
			logger.Debug("[Ingest] Skipping unsupported object", "key", key)
			continue
		}
		sources = append(sources, newSource(idFromPath(key), key, c.String("ctype"), l))
	}
	return ingestSources(c, sources)
}

func ingestSources(c *cli.Context, sources []loader.Source) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := c.String("graph")
	if len(sources) == 0 {
		logger.Warn("[Ingest] Nothing to ingest", "graph", name)
		return nil
	}

	databaseURL := c.String("database-url")
	if err := pgstore.Migrate(databaseURL); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	pool, err := pgstore.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	stores, err := pgstore.NewOpener(pool).Open(ctx, name)
	if err != nil {
		return err
	}

	res, err := ingest.Run(ctx, stores.Graph, sources, ingest.Params{
		Replace:     c.Bool("replace"),
		Concurrency: c.Int("concurrency"),
	})
	logger.Info("[Ingest] Done", "graph", name, "added", res.Added, "skipped", res.Skipped, "failed", res.Failed)
	if err != nil {
		return err
	}

	if c.Bool("sync") && res.Added > 0 {
		return requestSync(ctx, name)
	}
	return nil
}

func requestSync(ctx context.Context, name string) error {
	conn := queue.Init()
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		return err
	}

	correlationID, err := gonanoid.New()
	if err != nil {
		return err
	}
	msg := queue.SyncMessage{Graph: name, Action: queue.ActionSync, CorrelationID: correlationID}
	err = util.RetryErrWithContext(ctx, 3, func(context.Context) error {
		return queue.PublishSync(ch, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to request sync: %w", err)
	}
	logger.Info("[Ingest] Requested sync", "graph", name, "correlation_id", correlationID)
	return nil
}
