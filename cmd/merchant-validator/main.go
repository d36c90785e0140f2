package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/merchant-validator/internal/batch"
	"github.com/zombor/merchant-validator/internal/compliance"
	"github.com/zombor/merchant-validator/internal/fetch"
	"github.com/zombor/merchant-validator/internal/report"
	"github.com/zombor/merchant-validator/internal/scanning"
	"github.com/zombor/merchant-validator/internal/sheet"
	"github.com/zombor/merchant-validator/internal/validation"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// scannerConfig holds the provider flags
type scannerConfig struct {
	kind           string
	geminiKey      string
	geminiModel    string
	openAIKey      string
	openAIURL      string
	openAIModel    string
	anthropicKey   string
	anthropicModel string
	ollamaURL      string
	ollamaModel    string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("merchant-validator")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "merchant-validator.db", "Run index database file path")
		storagePath    = fs.StringLong("storage", "./results", "Result storage directory path")
		scannerType    = fs.StringLong("scanner", "gemini", "Vision model provider: 'gemini', 'openai', 'anthropic' or 'ollama'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		openAIKey      = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openAIURL      = fs.StringLong("openai-url", "", "OpenAI compatible API base URL (optional)")
		openAIModel    = fs.StringLong("openai-model", "gpt-4o-mini", "OpenAI model name")
		anthropicKey   = fs.StringLong("anthropic-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
		anthropicModel = fs.StringLong("anthropic-model", "claude-haiku-4-5-20251001", "Anthropic model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		concurrency    = fs.IntLong("concurrency", validation.DefaultConcurrency, "Records processed at once")
		aiConcurrency  = fs.IntLong("ai-concurrency", validation.DefaultAIConcurrency, "Simultaneous model calls")
		aiRPS          = fs.Float64Long("ai-rps", 0, "Maximum model calls started per second (0 for no limit)")
		fetchTimeout   = fs.DurationLong("fetch-timeout", fetch.DefaultTimeout, "Per-attempt image download timeout")
		fetchRetries   = fs.IntLong("fetch-retries", fetch.DefaultMaxRetries, "Retries for transient download failures (-1 disables)")
		maxImageBytes  = fs.IntLong("max-image-bytes", fetch.DefaultMaxBytes, "Maximum image size in bytes")
		maxUploadBytes = fs.IntLong("max-upload-bytes", int(batch.DefaultMaxUploadSize), "Maximum upload size in bytes")
		bannedWords    = fs.StringLong("banned-words", "", "Comma separated banned words (defaults to the built-in list)")
		csvEncoding    = fs.StringLong("csv-encoding", "utf-8", "CSV text encoding: 'utf-8' or 'windows-1251'")
		inputPath      = fs.StringLong("input", "", "Validate this dataset or image once and exit instead of serving")
		outputPath     = fs.StringLong("output", "", "Report path for --input (defaults to a timestamped xlsx)")
		showRows       = fs.BoolLong("rows", "Print every result row after a one-shot run")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("MERCHANT_VALIDATOR"),
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

	scanner, err := newScanner(scannerConfig{
		kind:           *scannerType,
		geminiKey:      *geminiKey,
		geminiModel:    *geminiModel,
		openAIKey:      *openAIKey,
		openAIURL:      *openAIURL,
		openAIModel:    *openAIModel,
		anthropicKey:   *anthropicKey,
		anthropicModel: *anthropicModel,
		ollamaURL:      *ollamaURL,
		ollamaModel:    *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize scanner", "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	fetcher := fetch.New(fetch.Options{
		Timeout:    *fetchTimeout,
		MaxBytes:   int64(*maxImageBytes),
		MaxRetries: *fetchRetries,
		UserAgent:  "merchant-validator/" + version,
	})
	classifier := compliance.NewClassifier(scanner, parseWordList(*bannedWords))
	orchestrator := validation.NewOrchestrator(fetcher, classifier, validation.Options{
		Concurrency: *concurrency,
		Limiter:     validation.NewLimiter(*aiConcurrency, *aiRPS),
	})
	loadOpts := sheet.LoadOptions{CSVEncoding: *csvEncoding}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *inputPath != "" {
		if err := runOnce(ctx, orchestrator, loadOpts, *inputPath, *outputPath, *showRows); err != nil {
			slog.Error("Validation failed", "input", *inputPath, "error", err)
			stop()
			os.Exit(1)
		}
		return
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := batch.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := batch.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := batch.NewService(db, orchestrator, store, loadOpts)
	server := batch.NewServer(service).WithMaxUploadSize(int64(*maxUploadBytes))

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server starting", "address", fmt.Sprintf("http://localhost%s", addr), "scanner", *scannerType, "version", version)

	// Serve until interrupted
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		stop()
		db.Close()
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

// newScanner builds the configured vision model client
func newScanner(cfg scannerConfig) (scanning.Scanner, error) {
	switch cfg.kind {
	case "gemini":
		apiKey := firstNonEmpty(cfg.geminiKey, os.Getenv("GEMINI_API_KEY"))
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		return scanning.NewGemini(apiKey, cfg.geminiModel)
	case "openai":
		apiKey := firstNonEmpty(cfg.openAIKey, os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" && cfg.openAIURL == "" {
			return nil, errors.New("openai API key is required: set --openai-key or OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI scanner...", "model", cfg.openAIModel, "url", cfg.openAIURL)
		return scanning.NewOpenAI(apiKey, cfg.openAIURL, cfg.openAIModel)
	case "anthropic":
		apiKey := firstNonEmpty(cfg.anthropicKey, os.Getenv("ANTHROPIC_API_KEY"))
		if apiKey == "" {
			return nil, errors.New("anthropic API key is required: set --anthropic-key or ANTHROPIC_API_KEY")
		}
		slog.Info("Initializing Anthropic scanner...", "model", cfg.anthropicModel)
		return scanning.NewAnthropic(apiKey, cfg.anthropicModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: valid are gemini, openai, anthropic or ollama", cfg.kind)
	}
}

// runOnce validates one local file, writes the xlsx report and prints a summary
func runOnce(ctx context.Context, orchestrator *validation.Orchestrator, loadOpts sheet.LoadOptions, input, output string, showRows bool) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	var br *validation.BatchReport
	name := filepath.Base(input)
	switch {
	case sheet.IsDatasetFile(name, ""):
		ds, err := sheet.Load(name, data, loadOpts)
		if err != nil {
			return fmt.Errorf("loading dataset: %w", err)
		}
		br, err = orchestrator.Validate(ctx, ds)
		if err != nil {
			return err
		}
	case batch.IsImageUpload("", data):
		br, err = orchestrator.ValidateImage(ctx, name, data, http.DetectContentType(data))
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", batch.ErrInvalidUpload, name)
	}

	if output == "" {
		output = fmt.Sprintf("validation_results_%s.xlsx", time.Now().Format("20060102_150405"))
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, br); err != nil {
		return fmt.Errorf("writing xlsx report: %w", err)
	}
	if err := os.WriteFile(output, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	slog.Info("Report written", "path", output)

	return report.PrintSummary(os.Stdout, br, showRows)
}

// parseWordList splits a comma separated list; empty input means the defaults
func parseWordList(s string) []string {
	var words []string
	for _, w := range strings.Split(s, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
