package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
	"github.com/yanqian/faq-assistant/internal/infra/config"
	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
	"github.com/yanqian/faq-assistant/pkg/logger"
)

const usage = `usage: faqctl <command> [flags]

commands:
  seed <file|s3://key>            replace the corpus with the FAQs in file
  add-collection <name> <file>    load FAQs into a named collection
  create-embeddings               embed entries that have no embedding
  update-embeddings               re-embed entries (--force for all)
  collections                     list collections and entry counts
  worker                          consume queued embedding jobs (valkey queue)
`

var errUsage = errors.New("usage")

type cli struct {
	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{
		stdin:  bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
		logger: logger.NewWithWriter(stderr, os.Getenv("LOG_LEVEL"), envOr("LOG_FORMAT", "text")),
	}
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	var cmd func(context.Context, *config.Config, []string) error
	switch args[0] {
	case "seed":
		cmd = c.seed
	case "add-collection":
		cmd = c.addCollection
	case "create-embeddings":
		cmd = c.createEmbeddings
	case "update-embeddings":
		cmd = c.updateEmbeddings
	case "collections":
		cmd = c.collections
	case "worker":
		cmd = c.worker
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err := cmd(ctx, cfg, args[1:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) seed(ctx context.Context, cfg *config.Config, args []string) error {
	fs := c.flagSet("seed")
	collection := fs.String("collection", cfg.FAQ.DefaultCollection, "collection to tag the entries with")
	force := fs.Bool("force", false, "delete existing entries without asking")
	dryRun := fs.Bool("dry-run", false, "report what would change without writing")
	async := fs.Bool("async", false, "insert now and embed through the job queue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.stderr, "usage: faqctl seed [--collection name] [--force] [--dry-run] [--async] <file|s3://key>")
		return errUsage
	}

	e, err := newEnv(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer e.close()

	items, err := e.loader.Load(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	req := catalog.SeedRequest{Items: items, Collection: *collection, Force: *force, DryRun: *dryRun, Async: *async}
	report, err := e.catalog.Seed(ctx, req)
	if apperrors.IsCode(err, apperrors.CodeConflict) && !*dryRun {
		if !c.confirm(fmt.Sprintf("%v. Delete existing FAQs and reseed?", err)) {
			fmt.Fprintln(c.stderr, "seeding cancelled")
			return nil
		}
		req.Force = true
		report, err = e.catalog.Seed(ctx, req)
	}
	if err != nil {
		return err
	}
	return c.print(report)
}

func (c *cli) addCollection(ctx context.Context, cfg *config.Config, args []string) error {
	fs := c.flagSet("add-collection")
	description := fs.String("description", "", "collection description")
	yes := fs.Bool("yes", false, "add to an existing collection without asking")
	dryRun := fs.Bool("dry-run", false, "report what would change without writing")
	async := fs.Bool("async", false, "insert now and embed through the job queue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(c.stderr, "usage: faqctl add-collection [--description text] [--yes] [--dry-run] [--async] <name> <file|s3://key>")
		return errUsage
	}

	e, err := newEnv(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer e.close()

	items, err := e.loader.Load(ctx, fs.Arg(1))
	if err != nil {
		return err
	}
	req := catalog.AddCollectionRequest{
		Name:          fs.Arg(0),
		Description:   *description,
		Items:         items,
		DryRun:        *dryRun,
		Async:         *async,
		AllowExisting: *yes,
	}
	report, err := e.catalog.AddCollection(ctx, req)
	if apperrors.IsCode(err, apperrors.CodeConflict) {
		if !c.confirm(fmt.Sprintf("%v. Continue adding FAQs to this collection?", err)) {
			fmt.Fprintln(c.stderr, "operation cancelled")
			return nil
		}
		req.AllowExisting = true
		report, err = e.catalog.AddCollection(ctx, req)
	}
	if err != nil {
		return err
	}
	return c.print(report)
}

func (c *cli) createEmbeddings(ctx context.Context, cfg *config.Config, args []string) error {
	fs := c.flagSet("create-embeddings")
	collection := fs.String("collection", "", "only entries of this collection")
	dryRun := fs.Bool("dry-run", false, "report what would change without writing")
	async := fs.Bool("async", false, "embed through the job queue")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := newEnv(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer e.close()

	report, err := e.catalog.CreateEmbeddings(ctx, catalog.CreateEmbeddingsRequest{Collection: *collection, DryRun: *dryRun, Async: *async})
	if err != nil {
		return err
	}
	return c.print(report)
}

func (c *cli) updateEmbeddings(ctx context.Context, cfg *config.Config, args []string) error {
	fs := c.flagSet("update-embeddings")
	force := fs.Bool("force", false, "re-embed every entry")
	dryRun := fs.Bool("dry-run", false, "report what would change without writing")
	async := fs.Bool("async", false, "embed through the job queue")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := newEnv(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer e.close()

	report, err := e.catalog.UpdateEmbeddings(ctx, catalog.UpdateEmbeddingsRequest{Force: *force, DryRun: *dryRun, Async: *async})
	if err != nil {
		return err
	}
	return c.print(report)
}

func (c *cli) collections(ctx context.Context, cfg *config.Config, args []string) error {
	fs := c.flagSet("collections")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := newEnv(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer e.close()

	summaries, err := e.catalog.Collections(ctx)
	if err != nil {
		return err
	}
	return c.print(summaries)
}

func (c *cli) worker(ctx context.Context, cfg *config.Config, args []string) error {
	fs := c.flagSet("worker")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Queue.Driver != config.QueueValkey {
		return apperrors.Wrap(apperrors.CodeConfiguration, "worker needs queue.driver valkey", nil)
	}

	e, err := newEnv(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer e.close()

	return e.valkey.Consume(ctx, e.catalog.HandleJob)
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) confirm(question string) bool {
	fmt.Fprintf(c.stderr, "%s (yes/no): ", question)
	answer, err := c.stdin.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
