package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/haoping-api/internal/api"
	apiMiddleware "github.com/phrazzld/haoping-api/internal/api/middleware"
	"github.com/phrazzld/haoping-api/internal/cache"
	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/credential"
	"github.com/phrazzld/haoping-api/internal/generation"
	"github.com/phrazzld/haoping-api/internal/platform/baidu"
	"github.com/phrazzld/haoping-api/internal/platform/deepseek"
	"github.com/phrazzld/haoping-api/internal/platform/gemini"
	"github.com/phrazzld/haoping-api/internal/platform/hunyuan"
	"github.com/phrazzld/haoping-api/internal/platform/postgres"
	"github.com/phrazzld/haoping-api/internal/platform/wechat"
	"github.com/phrazzld/haoping-api/internal/service"
	"github.com/phrazzld/haoping-api/internal/service/auth"
	"github.com/phrazzld/haoping-api/internal/vision"
)

// application holds the shared dependencies and everything that needs
// closing on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// memo is the process-wide expiring cache. It is created here and only
	// here; every component receives this instance.
	memo *cache.Store

	verifier       auth.Verifier
	reviewService  service.ReviewService
	commentService service.CommentService
	userService    service.UserService

	closers []io.Closer
}

// newApplication wires every component. The database connection must already
// be open.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
		memo:   cache.New(),
	}

	var err error
	app.verifier, err = auth.NewVerifier(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	categoryStore := postgres.NewPostgresCategoryStore(db, logger)
	commentStore := postgres.NewPostgresCommentStore(db, logger)
	userStore := postgres.NewPostgresUserStore(db, logger)

	generator, err := app.newGenerator(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
	}
	logger.Info("LLM generator initialized", slog.String("provider", cfg.LLM.Provider))

	var recognizer service.Recognizer
	if r := app.newRecognizer(); r != nil {
		recognizer = r
	}

	app.reviewService, err = service.NewReviewService(
		db,
		categoryStore,
		commentStore,
		recognizer,
		generator,
		app.memo,
		service.ReviewConfig{
			Timeout:          cfg.Generation.Timeout,
			DefaultCategory:  cfg.Generation.DefaultCategory,
			CategoryCacheTTL: cfg.Generation.CategoryCacheTTL,
			Temperature:      cfg.LLM.Temperature,
			DefaultWords:     cfg.Generation.DefaultWords,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create review service: %w", err)
	}

	app.commentService, err = service.NewCommentService(commentStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment service: %w", err)
	}

	var phones service.PhoneExchanger
	if cfg.WeChat.Configured() {
		client := wechat.NewClient(cfg.WeChat, cfg.Vision.FetchTimeout, logger)
		app.closers = append(app.closers, client)
		tokens := credential.NewCache(wechat.ProviderName, client, cfg.WeChat.RefreshMargin, app.memo, logger)
		phones = wechat.NewPhoneClient(client, tokens)
	} else {
		logger.Warn("wechat credentials not configured, phone binding disabled")
	}

	app.userService, err = service.NewUserService(userStore, phones, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create user service: %w", err)
	}

	return app, nil
}

func (app *application) newGenerator(ctx context.Context) (generation.Generator, error) {
	log := app.logger.With(slog.String("component", "llm_generator"))
	switch app.config.LLM.Provider {
	case "gemini":
		return gemini.NewGenerator(ctx, log, app.config.LLM)
	default:
		return deepseek.NewGenerator(log, app.config.LLM)
	}
}

// newRecognizer returns nil when recognition is disabled, including when the
// selected provider has no keys.
func (app *application) newRecognizer() *vision.Recognizer {
	cfg := app.config
	var classifier vision.Classifier

	switch cfg.Vision.Provider {
	case "baidu":
		if !cfg.Baidu.Configured() {
			app.logger.Warn("baidu keys not configured, image recognition disabled")
			return nil
		}
		tokens := credential.NewCache(
			baidu.ProviderName,
			baidu.NewIssuer(cfg.Baidu, &http.Client{Timeout: cfg.Vision.FetchTimeout}),
			cfg.Baidu.RefreshMargin,
			app.memo,
			app.logger,
		)
		c := baidu.NewClassifier(tokens, baidu.OptionsFromConfig(cfg.Baidu, cfg.Vision), app.logger)
		app.closers = append(app.closers, c)
		classifier = c
	case "hunyuan":
		if cfg.Hunyuan.APIKey == "" {
			app.logger.Warn("hunyuan api key not configured, image recognition disabled")
			return nil
		}
		classifier = hunyuan.NewClassifier(cfg.Hunyuan, app.logger)
	default:
		app.logger.Info("image recognition disabled")
		return nil
	}

	fetcher := vision.NewHTTPFetcher(cfg.Vision.FetchTimeout, cfg.Vision.MaxImageBytes)
	app.closers = append(app.closers, fetcher)

	app.logger.Info("image recognition initialized", slog.String("provider", cfg.Vision.Provider))
	return vision.NewRecognizer(classifier, fetcher, app.memo, vision.Config{
		MinConfidence:   cfg.Vision.MinConfidence,
		NonSubjectLabel: cfg.Vision.NonSubjectLabel,
		MemoTTL:         cfg.Vision.MemoTTL,
		MaxConcurrency:  cfg.Vision.MaxConcurrency,
	}, app.logger)
}

// setupRouter registers middleware and routes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.verifier)
	commentHandler := api.NewCommentHandler(app.reviewService, app.commentService, app.config.Server.MaxUploadBytes, app.logger)
	dishHandler := api.NewDishHandler(app.reviewService, app.logger)
	userHandler := api.NewUserHandler(app.userService, app.logger)
	healthHandler := api.NewHealthHandler(app.db)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/comments", commentHandler.Generate)
			r.Post("/comments/image", commentHandler.GenerateFromImages)
			r.Get("/comments", commentHandler.List)
			r.Put("/comments/{id}", commentHandler.Update)
			r.Delete("/comments/{id}", commentHandler.Delete)

			r.Post("/dishes/recognize", dishHandler.Recognize)

			r.Post("/user/phone", userHandler.BindPhone)
		})
	})

	r.Get("/health", healthHandler.Health)
	return r
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", slog.Int("port", app.config.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			app.logger.Error("server failed", slog.String("error", err.Error()))
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.logger.Info("server shutdown completed")
	return nil
}

// cleanup releases vendor clients and the database connection.
func (app *application) cleanup() {
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Error("failed to close client", slog.String("error", err.Error()))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", slog.String("error", err.Error()))
		} else {
			app.logger.Info("database connection closed")
		}
	}
}
