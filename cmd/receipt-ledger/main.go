package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"google.golang.org/api/option"

	"github.com/zombor/receipt-ledger/internal/bqstore"
	"github.com/zombor/receipt-ledger/internal/ledger"
	"github.com/zombor/receipt-ledger/internal/receipt"
	"github.com/zombor/receipt-ledger/internal/scanning"
	"github.com/zombor/receipt-ledger/internal/sheets"
	"github.com/zombor/receipt-ledger/internal/sqlstore"
	"github.com/zombor/receipt-ledger/internal/telegram"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("receipt-ledger")
	var (
		_           = fs.StringLong("config", "", "Config file path (optional)")
		provider    = fs.StringLong("provider", "gemini", "Model provider: 'gemini', 'vertex' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		vertexProj  = fs.StringLong("vertex-project", "", "Google Cloud project for Vertex AI")
		vertexLoc   = fs.StringLong("vertex-location", "us-central1", "Vertex AI location")
		vertexModel = fs.StringLong("vertex-model", "gemini-2.5-flash", "Vertex AI model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama model name; query planning needs tool support (e.g., qwen2.5vl)")
		tiers       = fs.StringLong("tiers", "schema,tool,freeform", "Extraction tiers to try, in order")
		columns     = fs.StringLong("columns", "", "Ledger columns, comma separated (default: all six)")
		storeType   = fs.StringLong("store", "bolt", "Ledger store: 'bolt', 'sheets', 'mysql' or 'bigquery'")
		dbPath      = fs.StringLong("db", "receipt-ledger.db", "Bolt database file path")
		sheetID     = fs.StringLong("sheet-id", "", "Google Sheets spreadsheet ID")
		sheetName   = fs.StringLong("sheet-name", "Sheet1", "Worksheet name")
		credentials = fs.StringLong("google-credentials", "", "Service account JSON file for Google APIs (optional)")
		mysqlDSN    = fs.StringLong("mysql-dsn", "", "MySQL DSN, e.g. user:pass@tcp(localhost:3306)/ledger")
		mysqlTable  = fs.StringLong("mysql-table", "ledger", "MySQL table name")
		bqProject   = fs.StringLong("bq-project", "", "BigQuery project")
		bqDataset   = fs.StringLong("bq-dataset", "", "BigQuery dataset")
		bqTable     = fs.StringLong("bq-table", "ledger", "BigQuery table")
		archiveType = fs.StringLong("archive", "local", "Receipt image archive: 'local', 'gcs' or 'none'")
		storagePath = fs.StringLong("storage", "./receipts", "Local archive directory path")
		gcsBucket   = fs.StringLong("gcs-bucket", "", "GCS bucket for archived receipts")
		gcsPrefix   = fs.StringLong("gcs-prefix", "receipts", "GCS object prefix")
		telegramTok = fs.StringLong("telegram-token", "", "Telegram bot token (enables the bot)")
		port        = fs.IntLong("port", 0, "HTTP server port (0 disables the HTTP API)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		appendTries = fs.IntLong("append-attempts", 1, "Attempts to save a record before reporting it unsaved")
		timezone    = fs.StringLong("timezone", "Local", "Timezone for ledger timestamps")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_LEDGER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *telegramTok == "" && *port == 0 {
		slog.Error("Nothing to run. Set --telegram-token and/or --port")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		slog.Error("Invalid timezone", "timezone", *timezone, "error", err)
		os.Exit(1)
	}
	clock := receipt.LocationTimeSource{Location: loc}

	layout := ledger.DefaultLayout()
	if *columns != "" {
		layout, err = ledger.NewLayout(splitList(*columns)...)
		if err != nil {
			slog.Error("Invalid ledger columns", "error", err)
			os.Exit(1)
		}
	}

	var googleOpts []option.ClientOption
	if *credentials != "" {
		googleOpts = append(googleOpts, option.WithCredentialsFile(*credentials))
	}

	// Initialize model
	var model scanning.Model
	switch *provider {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini...", "model", *geminiModel)
		model, err = scanning.NewGemini(apiKey, *geminiModel)
	case "vertex":
		slog.Info("Initializing Vertex AI...", "project", *vertexProj, "location", *vertexLoc, "model", *vertexModel)
		model, err = scanning.NewVertex(ctx, *vertexProj, *vertexLoc, *vertexModel)
	case "ollama":
		slog.Info("Initializing Ollama...", "url", *ollamaURL, "model", *ollamaModel)
		model, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
	default:
		slog.Error("Invalid provider", "provider", *provider, "valid", "gemini, vertex or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize model", "provider", *provider, "error", err)
		os.Exit(1)
	}
	defer model.Close()

	tierModes, err := parseTiers(*tiers)
	if err != nil {
		slog.Error("Invalid tiers", "error", err)
		os.Exit(1)
	}

	// Initialize ledger store
	slog.Info("Initializing ledger store...", "store", *storeType, "columns", layout.String())
	var store receipt.Store
	switch *storeType {
	case "bolt":
		store, err = receipt.NewBoltDBWithClock(*dbPath, layout, clock)
	case "sheets":
		store, err = sheets.New(ctx, sheets.Config{
			SpreadsheetID: *sheetID,
			Sheet:         *sheetName,
			Layout:        layout,
			Now:           clock.Now,
		}, googleOpts...)
	case "mysql":
		store, err = sqlstore.New(ctx, *mysqlDSN, *mysqlTable, clock.Now)
	case "bigquery":
		store, err = bqstore.New(ctx, bqstore.Config{
			ProjectID: *bqProject,
			Dataset:   *bqDataset,
			Table:     *bqTable,
			Now:       clock.Now,
		}, googleOpts...)
	default:
		slog.Error("Invalid store", "store", *storeType, "valid", "bolt, sheets, mysql or bigquery")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize ledger store", "store", *storeType, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	opts := []receipt.ServiceOption{receipt.WithAppendAttempts(*appendTries)}

	// Initialize archive
	switch *archiveType {
	case "local":
		archive, err := receipt.NewLocalArchive(*storagePath)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
		opts = append(opts, receipt.WithArchive(archive))
	case "gcs":
		archive, err := receipt.NewGCSArchive(ctx, *gcsBucket, *gcsPrefix, googleOpts...)
		if err != nil {
			slog.Error("Failed to initialize GCS archive", "error", err)
			os.Exit(1)
		}
		defer archive.Close()
		opts = append(opts, receipt.WithArchive(archive))
	case "none":
	default:
		slog.Error("Invalid archive", "archive", *archiveType, "valid", "local, gcs or none")
		os.Exit(1)
	}

	service := receipt.NewService(
		scanning.NewExtractor(model, scanning.WithTiers(tierModes...)),
		scanning.NewPlanner(model, layout),
		store,
		opts...,
	)

	var wg sync.WaitGroup

	if *port != 0 {
		basicAuth := receipt.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		}
		server := receipt.NewServer(service, basicAuth)
		addr := fmt.Sprintf(":%d", *port)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx, addr); err != nil {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
		if *authUser != "" || *authPass != "" {
			slog.Info("Basic auth enabled", "user", *authUser)
		}
	}

	if *telegramTok != "" {
		api, err := tgbotapi.NewBotAPI(*telegramTok)
		if err != nil {
			slog.Error("Failed to connect to Telegram", "error", err)
			os.Exit(1)
		}
		slog.Info("Telegram bot authorized", "username", api.Self.UserName)

		bot := telegram.New(api, service)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil {
				slog.Error("Telegram bot error", "error", err)
				cancel()
			}
		}()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTiers(s string) ([]scanning.Mode, error) {
	var modes []scanning.Mode
	for _, name := range splitList(s) {
		switch strings.ToLower(name) {
		case "schema":
			modes = append(modes, scanning.ModeSchema)
		case "tool":
			modes = append(modes, scanning.ModeTool)
		case "freeform":
			modes = append(modes, scanning.ModeFreeform)
		default:
			return nil, fmt.Errorf("unknown tier %q", name)
		}
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}
	return modes, nil
}
