package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/daynest/realtime/internal/config"
	"github.com/daynest/realtime/internal/domain"
	"github.com/daynest/realtime/internal/notify"
	"github.com/daynest/realtime/internal/realtime"
	"github.com/daynest/realtime/internal/session"
)

func main() {
	email := flag.String("email", "", "account email for a fresh login")
	password := flag.String("password", "", "account password for a fresh login")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	// sessionEnded fires when the session dies from any path: explicit
	// logout, a 401, or a call with no token. Headless, "redirect to
	// login" means shutting down.
	sessionEnded := make(chan struct{}, 1)
	store := session.NewStore(cfg.APIBaseURL, session.NewFileStore(cfg.StateDir), logger,
		session.WithTeardownHook(func() {
			select {
			case sessionEnded <- struct{}{}:
			default:
			}
		}))

	sess := store.Restore()
	if sess == nil {
		if *email == "" || *password == "" {
			logger.Fatal("no persisted session; pass -email and -password to log in")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		fresh, err := store.Login(ctx, *email, *password)
		cancel()
		if err != nil {
			logger.Fatal("login failed", zap.Error(err))
		}
		sess = fresh
	}

	logger.Info("session ready",
		zap.Int64("user_id", sess.User.ID),
		zap.String("role", string(sess.User.Role)),
		zap.String("home", sess.User.Role.HomePath()))

	if !sess.Entitlements.Can(domain.CapabilityMessaging) {
		logger.Fatal("messaging is not entitled for this account tier")
	}

	rt := realtime.NewService(realtime.Config{
		URL:         cfg.RealtimeURL,
		DialTimeout: cfg.DialTimeout,
		MaxAttempts: cfg.MaxReconnectAttempts,
	}, store, logger)

	manager := rt.Initialize(false)
	manager.Connect()

	reconciler := notify.New(store, manager, store.UserID, cfg.PollInterval, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reconciler.Start(ctx)

	offChange := reconciler.OnChange(func(s domain.NotificationState) {
		logger.Info("notification state",
			zap.Int("unread", s.UnreadCount),
			zap.Int("counterparties_online", countOnline(s)))
	})
	offStatus := manager.OnStatus(func(status realtime.Status) {
		logger.Info("realtime status", zap.String("status", string(status)))
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutting down")
	case <-sessionEnded:
		logger.Info("session ended, redirecting to login",
			zap.String("path", domain.LoginPath))
	}

	offChange()
	offStatus()
	reconciler.Stop()
	rt.Shutdown()
}

func countOnline(s domain.NotificationState) int {
	online := 0
	for _, up := range s.Online {
		if up {
			online++
		}
	}
	return online
}

func newLogger(level string) *zap.Logger {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	zap.ReplaceGlobals(logger)
	return logger
}
