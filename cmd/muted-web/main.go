package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/muted-image-editor/internal/chat"
	"github.com/fpang/muted-image-editor/internal/cli"
	"github.com/fpang/muted-image-editor/internal/config"
	"github.com/fpang/muted-image-editor/internal/editor"
	"github.com/fpang/muted-image-editor/internal/logging"
	"github.com/fpang/muted-image-editor/internal/preset"
	"github.com/fpang/muted-image-editor/internal/session"
)

//go:embed all:frontend_dist
var frontendFS embed.FS

// Set at build time with -ldflags "-X main.commitHash=... -X main.buildTime=...".
var (
	commitHash string
	buildTime  string
)

// CLI flags
var (
	portFlag         int
	hostFlag         string
	modelFlag        string
	discardStaleFlag bool
	skipValidateFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "muted-web",
	Short: "Web UI for muted photo presets",
	Long: `Muted Web starts a local web server for applying muted, film-like
presets to a photo with Gemini. Upload an image, pick a preset, and scrub the
intensity slider; every change is sent to the image model.

Examples:
  muted-web
  muted-web --port 9090
  muted-web --model gemini-3-pro-image-preview --discard-stale`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	rootCmd.Flags().StringVar(&hostFlag, "host", "localhost", "Interface to bind")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini image model (default from GEMINI_IMAGE_MODEL or "+chat.DefaultImageModelName+")")
	rootCmd.Flags().BoolVar(&discardStaleFlag, "discard-stale", false, "Drop edit responses superseded by a newer request")
	rootCmd.Flags().BoolVar(&skipValidateFlag, "skip-validate", false, "Skip the API key check at startup")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	config.LoadDotEnv()
	logging.Init()

	cfg := config.Load()
	if modelFlag != "" {
		cfg.ImageModel = modelFlag
	}
	if cmd.Flags().Changed("discard-stale") {
		cfg.DiscardStale = discardStaleFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	invoker := cli.InitImageClient(ctx, cfg, !skipValidateFlag)
	catalog := preset.Default()

	registry := session.NewRegistry(func(id string) *editor.Controller {
		opts := append(cfg.EditorOptions(), editor.WithName(id), editor.WithContext(ctx))
		return editor.New(catalog, invoker, opts...)
	}, cfg.SessionIdleTTL)
	go registry.Run(ctx, time.Minute)

	frontendSub, err := fs.Sub(frontendFS, "frontend_dist")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to access embedded frontend")
	}

	srv := &server{
		catalog:        catalog,
		sessions:       registry,
		maxUploadBytes: cfg.MaxUploadBytes,
		heartbeat:      15 * time.Second,
		frontend:       frontendSub,
	}

	addr := fmt.Sprintf("%s:%d", hostFlag, portFlag)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logging.NewStartupLogger("muted-web").
		CommitHash(commitHash).
		BuildTime(buildTime).
		Endpoint("listen", addr).
		SSMParam("apiKey", cfg.SSMParam).
		Feature("ssm", cfg.UseSSM).
		Feature("discardStale", cfg.DiscardStale).
		Feature("validateKey", !skipValidateFlag).
		Config("model", invoker.Model()).
		Config("debounce", cfg.Debounce.String()).
		Config("confirmationTTL", cfg.ConfirmationTTL.String()).
		Config("sessionIdleTTL", cfg.SessionIdleTTL.String()).
		Config("presets", fmt.Sprint(catalog.Len())).
		InitDuration(time.Since(start)).
		Log()

	fmt.Printf("\n  Muted Image Editor: http://%s\n\n", addr)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
