package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/assessor/internal/assessment"
	"github.com/pavelanni/assessor/internal/extract"
	"github.com/pavelanni/assessor/internal/handler"
	appI18n "github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/llm/prompts"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/session"
	"github.com/pavelanni/assessor/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assessor",
		Short: "Conversational assessment generator powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), hashKeyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `assessor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":3000", "HTTP listen address")
	f.String("db", "assessments.db", "SQLite archive path")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Float32("llm-temperature", 0.3, "Sampling temperature")
	f.Bool("llm-json-mode", true, "Request JSON object responses from the LLM")
	f.Duration("llm-timeout", 0, "Timeout for each LLM call (0 = none)")
	f.Bool("skip-llm-check", false, "Start without checking the LLM endpoint")
	f.StringP("lang", "l", "en", "Default message language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /assessor)")
	f.StringSlice("allowed-origins", []string{"*"}, "Origins allowed to open WebSocket connections")
	f.String("access-key-hash", "", "bcrypt hash of the client access key (see hash-key)")
	f.Duration("pong-wait", 60*time.Second, "Time allowed between pongs before a client is dropped (0 disables pings)")
	f.Int64("max-message-bytes", 1<<20, "Maximum inbound WebSocket message size")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived assessments as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "assessments.db", "SQLite archive path")
	f.String("kind", "", "Only export this kind (generated, modified)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func hashKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print a bcrypt hash for use with --access-key-hash",
		Args:  cobra.ExactArgs(1),
		RunE:  runHashKey,
	}
	cmd.Flags().Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("ASSESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("assessor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/assessor")
	v.AddConfigPath("/etc/assessor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Fail on broken templates at startup rather than on the first message.
	if err := prompts.Load(); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	llmClient, err := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		llm.Options{
			Temperature: float32(v.GetFloat64("llm-temperature")),
			JSONMode:    v.GetBool("llm-json-mode"),
			Timeout:     v.GetDuration("llm-timeout"),
		},
	)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if !v.GetBool("skip-llm-check") {
		if err := llmClient.Ping(context.Background()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	basePath := normalizeBasePath(v.GetString("base-path"))

	serverCfg := model.ServerConfig{
		BasePath:        basePath,
		AllowedOrigins:  v.GetStringSlice("allowed-origins"),
		AccessKeyHash:   strings.TrimSpace(v.GetString("access-key-hash")),
		PongWait:        v.GetDuration("pong-wait"),
		MaxMessageBytes: v.GetInt64("max-message-bytes"),
		DefaultLang:     lang,
	}
	if serverCfg.AccessKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(serverCfg.AccessKeyHash)); err != nil {
			return fmt.Errorf("access-key-hash is not a bcrypt hash: %w", err)
		}
	}

	h := handler.New(
		session.NewStore(),
		extract.New(llmClient),
		assessment.New(llmClient, db),
		serverCfg,
	)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"base_path", basePath,
		"access_key", serverCfg.AccessKeyHash != "",
		"allowed_origins", serverCfg.AllowedOrigins,
	)
	return http.ListenAndServe(addr, r)
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	kind := model.AssessmentKind(strings.ToLower(strings.TrimSpace(v.GetString("kind"))))
	switch kind {
	case "", model.KindGenerated, model.KindModified:
	default:
		return fmt.Errorf("unknown kind %q (want generated or modified)", kind)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAssessments(kind)
	if err != nil {
		return fmt.Errorf("export assessments: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported assessments", "count", export.Count, "kind", kind)
	return nil
}

func runHashKey(cmd *cobra.Command, args []string) error {
	cost, _ := cmd.Flags().GetInt("cost")
	key := strings.TrimSpace(args[0])
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return err
}
