package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"storyboardgen/internal/billing"
	"storyboardgen/internal/generation"
	"storyboardgen/internal/http/handlers"
	httpapi "storyboardgen/internal/http/httpapi"
	"storyboardgen/internal/infra"
	"storyboardgen/internal/infra/credentials"
	"storyboardgen/internal/infra/geoip"
	"storyboardgen/internal/middleware"
	"storyboardgen/internal/notify"
	"storyboardgen/internal/presets"
	"storyboardgen/internal/project"
	"storyboardgen/internal/providers/caption"
	"storyboardgen/internal/providers/image"
	"storyboardgen/internal/references"
	"storyboardgen/internal/storage"
	"storyboardgen/internal/usage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	creds := credentials.NewStore(runner)

	blobs, static, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	ledger := usage.NewLedger(runner, logger)
	subs := usage.NewSubscriptions(runner)
	usageSvc := &usage.Service{Ledger: ledger, Subscriptions: subs}
	projects := project.NewStore(runner, blobs, logger, cfg.SignedURLTTL)
	resolver := references.NewResolver(cfg.ImageSourceAllowlist, nil)

	model, closeModel := newImageModel(ctx, cfg, creds, logger)
	defer closeModel()

	orchestrator := generation.NewOrchestrator(model, ledger, projects, resolver, logger, generation.Options{
		MaxParallelScenes: cfg.MaxParallelScenes,
	})

	webhook := billing.NewWebhook(billing.Options{
		Secret:     cfg.StripeWebhookSecret,
		PricePlans: cfg.StripePricePlans,
	}, subs, ledger, newMailer(cfg, logger), logger)

	app := &handlers.App{
		Logger:            logger,
		Generator:         orchestrator,
		Usage:             usageSvc,
		References:        resolver,
		Projects:          projects,
		Presets:           presets.NewStore(runner),
		Captions:          newCaptioner(cfg, creds, logger),
		Billing:           webhook,
		GenerationTimeout: cfg.GenerationTimeout,
		DB:                dbpool,
	}

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var lookup middleware.CountryLookup
	if geo != nil {
		lookup = geo.Country
		defer geo.Close()
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   "en",
		CountryLookup:   lookup,
		Static:          static,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Str("storage", cfg.StorageDriver).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// In-flight generations run on detached contexts; give them their full budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GenerationTimeout+10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newBlobStore(ctx context.Context, cfg *infra.Config) (storage.BlobStore, http.Handler, error) {
	if cfg.StorageDriver == "s3" {
		store, err := storage.NewS3Store(ctx, cfg.S3Bucket, cfg.AWSRegion)
		return store, nil, err
	}
	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL, cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Handler(), nil
}

type closer func()

// newImageModel uses Gemini whenever a key is configured or stored. Development
// without a key falls back to the synthetic renderer.
func newImageModel(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger zerolog.Logger) (generation.Model, closer) {
	key := strings.TrimSpace(cfg.GeminiAPIKey)
	if key == "" {
		stored, err := creds.GeminiAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to read stored gemini key")
		}
		key = stored
	}
	if key == "" && !cfg.IsProduction() {
		logger.Warn().Msg("no gemini key configured, using synthetic image generator")
		return image.NewSynthetic(), func() {}
	}
	gemini := image.NewGemini(image.GeminiOptions{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiImageModel,
		Keys:   creds,
		Logger: logger,
	})
	return gemini, func() { _ = gemini.Close() }
}

func newCaptioner(cfg *infra.Config, creds *credentials.Store, logger zerolog.Logger) caption.Captioner {
	onFallback := func(provider, reason string, err error) {
		logger.Warn().Err(err).Str("provider", provider).Str("reason", reason).Msg("caption provider fallback")
	}
	switch cfg.CaptionProvider {
	case "openai":
		return caption.NewOpenAI(caption.OpenAIOptions{
			APIKey:     cfg.OpenAIAPIKey,
			Keys:       creds,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			OnFallback: onFallback,
		})
	case "static":
		return caption.NewStatic()
	default:
		return caption.NewGemini(caption.GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			Keys:       creds,
			Model:      cfg.GeminiTextModel,
			OnFallback: onFallback,
		})
	}
}

func newMailer(cfg *infra.Config, logger zerolog.Logger) notify.Mailer {
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
		return notify.NewLogMailer(logger)
	}
	return notify.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFrom, logger)
}
