package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/contractdesk/contractdesk/internal/contract"
	"github.com/contractdesk/contractdesk/internal/gateway"
	"github.com/contractdesk/contractdesk/internal/notify"
	"github.com/contractdesk/contractdesk/internal/realtime"
	"github.com/contractdesk/contractdesk/internal/store"
	"github.com/contractdesk/contractdesk/internal/task"
	"github.com/contractdesk/contractdesk/internal/watchdir"
)

const usageText = `usage: contractdesk <command> [flags]

commands:
  list     list contracts with optional filters
  get      fetch one contract by id
  create   create a contract from flags
  update   apply a partial update to a contract
  delete   delete a contract
  upload   upload a contract document (.json or .txt)
  summary  show the dashboard summary
  listen   stream push events into the local cache
  watch    upload documents dropped into a directory
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = runList(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	case "create":
		err = runCreate(os.Args[2:])
	case "update":
		err = runUpdate(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	case "upload":
		err = runUpload(os.Args[2:])
	case "summary":
		err = runSummary(os.Args[2:])
	case "listen":
		err = runListen(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usageText)
		os.Exit(2)
	}
	if err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components every subcommand needs.
type app struct {
	store    *store.Store
	notifier *notify.Center
	gateway  *gateway.Gateway
	wsURL    string
	logger   *slog.Logger
}

type appFlags struct {
	baseURL   *string
	wsURL     *string
	timeout   *time.Duration
	logLevel  *string
	logFormat *string
}

func registerAppFlags(fs *flag.FlagSet) *appFlags {
	return &appFlags{
		baseURL:   fs.String("base-url", envOrDefault("CONTRACTDESK_BASE_URL", "http://127.0.0.1:8080"), "contract API base URL"),
		wsURL:     fs.String("ws-url", strings.TrimSpace(os.Getenv("CONTRACTDESK_WS_URL")), "push endpoint URL (derived from base-url when empty)"),
		timeout:   fs.Duration("timeout", durationEnv("CONTRACTDESK_TIMEOUT", 15*time.Second), "per-request timeout"),
		logLevel:  fs.String("log-level", envOrDefault("CONTRACTDESK_LOG_LEVEL", "info"), "log level (debug, info, warn, error)"),
		logFormat: fs.String("log-format", envOrDefault("CONTRACTDESK_LOG_FORMAT", "text"), "log format (text, json)"),
	}
}

func (f *appFlags) build() (*app, error) {
	logger := newLogger(*f.logLevel, *f.logFormat)
	wsURL := strings.TrimSpace(*f.wsURL)
	if wsURL == "" {
		derived, err := deriveWSURL(*f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("derive push URL: %w", err)
		}
		wsURL = derived
	}

	contracts := store.New()
	center := notify.NewCenter()
	center.Subscribe(func(n notify.Notification) {
		fmt.Fprintf(os.Stderr, "[%s] %s", n.Severity, n.Title)
		if n.Description != "" {
			fmt.Fprintf(os.Stderr, ": %s", n.Description)
		}
		fmt.Fprintln(os.Stderr)
	})

	client := gateway.NewClient(*f.baseURL, &http.Client{Timeout: *f.timeout})
	gw := gateway.New(client, contracts, center, gateway.Options{Logger: logger})

	return &app{
		store:    contracts,
		notifier: center,
		gateway:  gw,
		wsURL:    wsURL,
		logger:   logger,
	}, nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	flags := registerAppFlags(fs)
	status := fs.String("status", "", "filter by status (Draft, Finalized)")
	search := fs.String("search", "", "search text applied to title and party fields")
	condition := fs.String("condition", "", "combine title/party predicates with AND or OR")
	page := fs.Int("page", 1, "1-based page number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := flags.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	filters := contract.Filters{
		Status:    contract.Status(*status),
		Search:    *search,
		Condition: contract.Condition(strings.ToUpper(strings.TrimSpace(*condition))),
		Page:      *page,
	}
	listTask := task.New(a.gateway.List, filters)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	result, err := listTask.Run(ctx)
	if err != nil {
		return err
	}

	records := make([]contract.Contract, 0, len(result.IDs))
	for _, id := range result.IDs {
		if record, ok := a.store.Get(id); ok {
			records = append(records, record)
		}
	}
	return printJSON(struct {
		Total     int                 `json:"total"`
		Contracts []contract.Contract `json:"contracts"`
	}{Total: result.Total, Contracts: records})
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	flags := registerAppFlags(fs)
	id := fs.Int64("id", 0, "contract id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "get: -id is required")
		return fmt.Errorf("id is required")
	}
	a, err := flags.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	gotID, err := a.gateway.GetByID(ctx, *id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	record, _ := a.store.Get(gotID)
	return printJSON(record)
}

type stringListFlag []string

func (f *stringListFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *stringListFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	flags := registerAppFlags(fs)
	title := fs.String("title", "", "contract title (required)")
	description := fs.String("description", "", "contract description")
	status := fs.String("status", string(contract.StatusDraft), "contract status (Draft, Finalized)")
	content := fs.String("content", "", "contract content")
	var parties stringListFlag
	fs.Var(&parties, "party", "contract party (repeatable, order preserved)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := flags.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	created, err := a.gateway.Create(ctx, contract.Draft{
		Title:       *title,
		Description: *description,
		Status:      contract.Status(*status),
		Parties:     parties,
		Content:     *content,
	})
	if err != nil {
		return err
	}
	// Create deliberately leaves inserting to the caller.
	a.store.UpsertOne(created)
	return printJSON(created)
}

func runUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	flags := registerAppFlags(fs)
	id := fs.Int64("id", 0, "contract id (required)")
	title := fs.String("title", "", "new title")
	description := fs.String("description", "", "new description")
	status := fs.String("status", "", "new status (Draft, Finalized)")
	content := fs.String("content", "", "new content")
	var parties stringListFlag
	fs.Var(&parties, "party", "replacement party list (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "update: -id is required")
		return fmt.Errorf("id is required")
	}

	patch := buildPatch(fs, *title, *description, *status, *content, parties)
	if patch.Empty() {
		fmt.Fprintln(os.Stderr, "update: no fields to change")
		return fmt.Errorf("empty patch")
	}
	a, err := flags.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	updated, err := a.gateway.Update(ctx, *id, patch)
	if err != nil {
		return err
	}
	a.store.UpsertOne(updated)
	return printJSON(updated)
}

// buildPatch maps only the flags the user actually set into patch fields, so
// unset flags stay off the wire.
func buildPatch(fs *flag.FlagSet, title, description, status, content string, parties []string) contract.Patch {
	var patch contract.Patch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			patch.Title = &title
		case "description":
			patch.Description = &description
		case "status":
			s := contract.Status(status)
			patch.Status = &s
		case "content":
			patch.Content = &content
		case "party":
			patch.Parties = parties
		}
	})
	return patch
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	flags := registerAppFlags(fs)
	id := fs.Int64("id", 0, "contract id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "delete: -id is required")
		return fmt.Errorf("id is required")
	}
	a, err := flags.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	deletedID, err := a.gateway.Delete(ctx, *id)
	if err != nil {
		return err
	}
	// Removing locally is the caller's job; the push channel would reconcile
	// it eventually, but a CLI run has no session left to receive the event.
	a.store.Remove(deletedID)
	return printJSON(struct {
		Deleted int64 `json:"deleted"`
	}{Deleted: deletedID})
}

func runUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	flags := registerAppFlags(fs)
	file := fs.String("file", "", "path to a .json or .txt contract document (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "upload: -file is required")
		return fmt.Errorf("file is required")
	}
	a, err := flags.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	created, err := a.gateway.Upload(ctx, filepath.Base(*file), data)
	if err != nil {
		return err
	}
	a.store.UpsertOne(created)
	return printJSON(created)
}

func runSummary(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	flags := registerAppFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := flags.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	summary, err := a.gateway.DashboardSummary(ctx)
	if err != nil {
		return err
	}

	recent := make([]contract.Contract, 0, len(summary.RecentContractIDs))
	for _, id := range summary.RecentContractIDs {
		if record, ok := a.store.Get(id); ok {
			recent = append(recent, record)
		}
	}
	return printJSON(struct {
		Stats  gateway.SummaryStats `json:"stats"`
		Recent []contract.Contract  `json:"recentContracts"`
	}{Stats: summary.Stats, Recent: recent})
}

func runListen(args []string) error {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	flags := registerAppFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := flags.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	a.store.Subscribe(func(c store.Change) {
		switch c.Op {
		case store.OpUpsert:
			fmt.Printf("upsert id=%d title=%q status=%s updatedAt=%s\n", c.ID, c.Contract.Title, c.Contract.Status, c.Contract.UpdatedAt)
		case store.OpRemove:
			fmt.Printf("remove id=%d\n", c.ID)
		case store.OpClear:
			fmt.Println("clear")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler := realtime.New(a.wsURL, a.store, realtime.Options{Logger: a.logger})
	reconciler.Start(ctx)
	defer reconciler.Close()

	a.logger.Info("listening for push events", slog.String("url", a.wsURL))
	<-ctx.Done()
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	flags := registerAppFlags(fs)
	dir := fs.String("dir", strings.TrimSpace(os.Getenv("CONTRACTDESK_WATCH_DIR")), "directory to watch for contract documents (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*dir) == "" {
		fmt.Fprintln(os.Stderr, "watch: -dir is required")
		return fmt.Errorf("dir is required")
	}
	a, err := flags.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	watcher, err := watchdir.New(*dir, a.gateway, a.store, watchdir.Options{Logger: a.logger})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler := realtime.New(a.wsURL, a.store, realtime.Options{Logger: a.logger})
	reconciler.Start(ctx)
	defer reconciler.Close()

	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// deriveWSURL maps the REST origin to its push endpoint: http becomes ws,
// https becomes wss, host and port carry over.
func deriveWSURL(baseURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in %q", parsed.Scheme, baseURL)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String(), nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s=%q, using fallback %s\n", name, raw, fallback)
		return fallback
	}
	return value
}
