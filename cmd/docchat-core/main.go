package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/custodia-labs/docchat-core/internal/config"
	"github.com/custodia-labs/docchat-core/internal/core/domain"
	"github.com/custodia-labs/docchat-core/internal/runtime"
	"github.com/custodia-labs/docchat-core/internal/worker"
)

var version = "dev"

const usage = `usage: docchat-core <command> [arguments]

commands:
  index <session> <path> [--async]   index a PDF or text document into a session
  ask <session> <question>           ask a question about the session's documents
  history <session> [--clear]        print or clear the session transcript
  purge <session>                    remove every chunk indexed under a session
  worker                             process queued indexing tasks
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatalf("Invalid log configuration: %v", err)
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("docchat-core %s starting %s", version, os.Args[1])
	svc, err := runtime.Connect(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer svc.Close()

	app := &app{svc: svc, cfg: cfg, out: os.Stdout}
	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
			svc.Close()
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		svc.Close()
		os.Exit(1)
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

type app struct {
	svc *runtime.Services
	cfg *config.Config
	out io.Writer
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "index":
		return a.index(ctx, args)
	case "ask":
		return a.ask(ctx, args)
	case "history":
		return a.history(ctx, args)
	case "purge":
		return a.purge(ctx, args)
	case "worker":
		return a.worker(ctx)
	default:
		return usageError(fmt.Sprintf("unknown command %q", command))
	}
}

func (a *app) index(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	async := fs.Bool("async", false, "enqueue the document for the worker instead of indexing now")
	if err := fs.Parse(reorderFlags(args)); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() != 2 {
		return usageError("index needs <session> <path>")
	}
	sessionID, path := fs.Arg(0), fs.Arg(1)

	if *async {
		queue := a.svc.Queue()
		if queue == nil {
			return errors.New("async indexing requires REDIS_URL")
		}
		task := domain.NewIndexTask(sessionID, path)
		if err := queue.Enqueue(ctx, task); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "queued %s as task %s\n", path, color.CyanString(task.ID))
		return nil
	}

	result, err := a.svc.Indexer.IndexDocument(ctx, sessionID, path)
	if err != nil {
		return err
	}
	if result.Empty {
		fmt.Fprintln(a.out, color.YellowString("%s has no extractable text; nothing indexed", result.Document.Filename))
		return nil
	}
	fmt.Fprintf(a.out, "%s %s: %d pages, %d chunks in %s\n",
		color.GreenString("indexed"),
		result.Document.Filename,
		result.Pages,
		result.ChunksIndexed,
		result.Duration.Round(time.Millisecond),
	)
	return nil
}

func (a *app) ask(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("ask needs <session> <question>")
	}
	sessionID, question := args[0], strings.Join(args[1:], " ")

	events, err := a.svc.Chat.Ask(ctx, sessionID, question)
	if err != nil {
		return err
	}

	var (
		result *domain.AskResult
		askErr error
	)
	for ev := range events {
		if ev.Delta != "" {
			fmt.Fprint(a.out, ev.Delta)
		}
		if ev.IsTerminal() {
			result, askErr = ev.Result, ev.Err
		}
	}
	fmt.Fprintln(a.out)

	if result != nil {
		a.printReferences(result)
	}
	if result != nil && domain.IsKind(askErr, domain.ErrorKindPersistence) {
		fmt.Fprintln(a.out, color.YellowString("warning: answer not saved to history: %v", askErr))
		return nil
	}
	return askErr
}

func (a *app) printReferences(result *domain.AskResult) {
	if result.RetrievalFailed {
		fmt.Fprintln(a.out, color.YellowString("(search unavailable; answered without documents)"))
	}
	if len(result.References) == 0 {
		return
	}
	bold := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintln(a.out, bold("references:"))
	for _, ref := range result.References {
		fmt.Fprintf(a.out, "  %s page %d (chunk %d)\n", ref.Filename, ref.PageNumber, ref.ChunkID)
	}
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	clearHistory := fs.Bool("clear", false, "delete the transcript")
	if err := fs.Parse(reorderFlags(args)); err != nil {
		return usageError(err.Error())
	}
	if fs.NArg() != 1 {
		return usageError("history needs <session>")
	}
	sessionID := fs.Arg(0)

	if *clearHistory {
		if err := a.svc.Chat.ClearHistory(ctx, sessionID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "cleared history for %s\n", sessionID)
		return nil
	}

	turns, err := a.svc.Chat.History(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintln(a.out, "no history")
		return nil
	}
	human := color.New(color.FgGreen, color.Bold).SprintFunc()
	assistant := color.New(color.FgCyan, color.Bold).SprintFunc()
	for _, turn := range turns {
		fmt.Fprintf(a.out, "%s %s\n%s %s\n\n", human("Human:"), turn.Question, assistant("AI:"), turn.Answer)
	}
	return nil
}

func (a *app) purge(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("purge needs <session>")
	}
	removed, err := a.svc.Indexer.PurgeSession(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %d chunks from %s\n", removed, args[0])
	return nil
}

func (a *app) worker(ctx context.Context) error {
	queue := a.svc.Queue()
	if queue == nil {
		return errors.New("worker requires REDIS_URL")
	}

	w := worker.NewWorker(worker.WorkerConfig{
		TaskQueue:      queue,
		Indexer:        a.svc.Indexer,
		Logger:         slog.Default(),
		Concurrency:    a.cfg.Worker.Concurrency,
		DequeueTimeout: a.cfg.Worker.DequeueTimeout,
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	log.Println("Worker started, processing indexing tasks...")

	<-ctx.Done()
	log.Println("Stopping worker...")
	w.Stop()
	return nil
}

// reorderFlags moves flags ahead of positional arguments so
// "index s1 report.pdf --async" parses like "index --async s1 report.pdf".
func reorderFlags(args []string) []string {
	var flags, positional []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
