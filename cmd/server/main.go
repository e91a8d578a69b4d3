package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tazhibayda/learnpath-auth/internal/auth"
	"github.com/tazhibayda/learnpath-auth/internal/config"
	api "github.com/tazhibayda/learnpath-auth/internal/http"
	applog "github.com/tazhibayda/learnpath-auth/internal/log"
	"github.com/tazhibayda/learnpath-auth/internal/mail"
	"github.com/tazhibayda/learnpath-auth/internal/metrics"
	"github.com/tazhibayda/learnpath-auth/internal/oauth"
	"github.com/tazhibayda/learnpath-auth/internal/queue"
	"github.com/tazhibayda/learnpath-auth/internal/ratelimit"
	"github.com/tazhibayda/learnpath-auth/internal/repo"
	"github.com/tazhibayda/learnpath-auth/internal/security"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	_ "github.com/tazhibayda/learnpath-auth/docs"
)

// @title LearnPath Auth API
// @version 1.0
// @description Registration, email verification, login, password reset and Google sign-in.
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	lg, err := applog.Init(cfg.IsProduction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.DDTraceEnabled {
		tracer.Start(tracer.WithService(cfg.DDService), tracer.WithEnv(cfg.Env))
		defer tracer.Stop()
	}
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.Pinger{}
	var users auth.UserStore
	switch cfg.StoreDriver {
	case "memory":
		ms := repo.NewMemoryStore()
		users, checks["store"] = ms, ms
		lg.Warn("using in-memory store; data is lost on restart")
	default:
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		store, err := repo.NewStore(cctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			cancel()
			lg.Fatal("mongo connect", zap.Error(err))
		}
		err = store.EnsureIndexes(cctx)
		cancel()
		if err != nil {
			lg.Fatal("mongo indexes", zap.Error(err))
		}
		defer func() { _ = store.Close(context.Background()) }()
		users, checks["store"] = store, store
	}

	// events are best effort unless mail itself rides the queue
	var events queue.Publisher = queue.NewNoop()
	if rp, err := queue.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange); err != nil {
		if cfg.MailTransport == "queue" {
			lg.Fatal("rabbit connect", zap.Error(err))
		}
		lg.Warn("rabbit unavailable, events disabled", zap.Error(err))
	} else {
		events = rp
	}
	defer func() { _ = events.Close() }()

	var sender mail.Sender
	switch cfg.MailTransport {
	case "smtp":
		sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	case "queue":
		sender = mail.NewQueueSender(events, cfg.RabbitExchange, cfg.RabbitMailKey)
	default:
		sender = mail.NewLogSender(lg)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitPerMin > 0 {
		if cfg.RedisAddr != "" {
			rl := ratelimit.NewRedis(cfg.RedisAddr, cfg.RateLimitPerMin)
			defer func() { _ = rl.Close() }()
			limiter, checks["redis"] = rl, rl
		} else {
			limiter = ratelimit.NewMemory(cfg.RateLimitPerMin)
		}
	}

	svc := auth.NewService(auth.Deps{
		Users:    users,
		Hasher:   security.NewBcryptHasher(),
		Sessions: security.NewIssuer(cfg.SessionSecret, cfg.JWTIssuer, security.PurposeSession),
		Resets:   security.NewIssuer(cfg.ResetSecret, cfg.JWTIssuer, security.PurposeReset),
		Mail:     mail.NewMailer(sender),
		Events:   events,
	}, auth.Options{
		FrontendURL:     cfg.FrontendURL,
		SessionTTL:      cfg.SessionTTL,
		OAuthSessionTTL: cfg.OAuthSessionTTL,
		ResetTTL:        cfg.ResetTTL,
		EventsExchange:  cfg.RabbitExchange,
	})

	var google *oauth.GoogleOAuth
	if cfg.GoogleEnabled() {
		google = oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.OAuthStateSecret)
	} else {
		lg.Info("google login disabled: GOOGLE_CLIENT_ID/SECRET/REDIRECT_URL not set")
	}

	h := api.NewHandler(svc, google, cfg.OAuthSuccessURL, cfg.OAuthFailureURL)
	h.Checks = checks

	ro := api.RouterOptions{
		Logger:      lg,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
		Production:  cfg.IsProduction,
	}
	if cfg.DDTraceEnabled {
		ro.TraceName = cfg.DDService
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(h, ro),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()
	lg.Info("auth service listening",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
		zap.String("mail", cfg.MailTransport))

	select {
	case <-ctx.Done():
		lg.Info("shutting down")
	case err := <-srvErr:
		if !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server error", zap.Error(err))
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
}
