package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/feichai0017/rag-service/config"
	"github.com/feichai0017/rag-service/internal/agent/llm"
	"github.com/feichai0017/rag-service/internal/app"
	"github.com/feichai0017/rag-service/internal/store"
	"github.com/feichai0017/rag-service/pkg/logger"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "ragctl",
		Usage:  "Operate the document QA service",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				EnvVars: []string{config.EnvConfigFile},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create or update the database schema",
				Action: migrateCommand,
			},
			{
				Name:   "purge-failed",
				Usage:  "Schedule deletion of failed documents older than a threshold",
				Action: purgeFailedCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Only purge documents uploaded before now minus this duration",
						Value: 24 * time.Hour,
					},
				},
			},
			{
				Name:   "cleanup-files",
				Usage:  "Remove stored files that no document record refers to",
				Action: cleanupFilesCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Only remove files last modified before now minus this duration",
						Value: 24 * time.Hour,
					},
				},
			},
			{
				Name:      "task-status",
				Usage:     "Show the queue state of a dispatched task",
				ArgsUsage: "<task-id>",
				Action:    taskStatusCommand,
			},
			{
				Name:   "check",
				Usage:  "Verify that the configured Ollama models are available",
				Action: checkCommand,
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	log, err := app.NewLogger(cfg, "ragctl")
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func migrateCommand(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := store.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	defer store.Close(db)

	if err := store.Migrate(db); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "schema is up to date")
	return nil
}

func purgeFailedCommand(c *cli.Context) error {
	olderThan := c.Duration("older-than")
	if olderThan < 0 {
		return errors.New("--older-than must not be negative")
	}

	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	rt, err := app.New(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	n, err := rt.DocumentService().PurgeFailed(c.Context, olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "scheduled deletion of %d failed document(s)\n", n)
	return nil
}

func cleanupFilesCommand(c *cli.Context) error {
	olderThan := c.Duration("older-than")
	if olderThan < 0 {
		return errors.New("--older-than must not be negative")
	}

	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	rt, err := app.New(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	n, err := rt.DocumentService().RemoveOrphanFiles(c.Context, olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "removed %d orphaned file(s)\n", n)
	return nil
}

func taskStatusCommand(c *cli.Context) error {
	taskID := strings.TrimSpace(c.Args().First())
	if taskID == "" {
		return errors.New("task id is required")
	}

	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	q := app.NewQueue(cfg)
	defer q.Close()

	status, err := q.GetTaskStatus(c.Context, taskID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func checkCommand(c *cli.Context) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	missing, err := llm.NewOllamaClient(cfg.LLM.ServerURL).MissingModels(c.Context, cfg.LLM.Model, cfg.LLM.EmbeddingModel)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("models not available on %s: %s", cfg.LLM.ServerURL, strings.Join(missing, ", "))
	}
	fmt.Fprintln(c.App.Writer, "all models available")
	return nil
}
