package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vibe-drinks/bot"
	"vibe-drinks/config"
	"vibe-drinks/db"
	"vibe-drinks/logger"
	"vibe-drinks/models"
	"vibe-drinks/realtime"
	"vibe-drinks/routes"
	"vibe-drinks/services"
	"vibe-drinks/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const usage = `usage: vibe-drinks [command] [flags]

commands:
  serve     run the HTTP API (default)
  migrate   apply the embedded SQL migrations
  adduser   create a staff or customer account
  watch     follow the order board from a terminal`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.NewLogger(cfg.Env)

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, log, args)
	case "migrate":
		err = runMigrate(ctx, cfg, log)
	case "adduser":
		err = runAddUser(ctx, cfg, args)
	case "watch":
		err = runWatch(ctx, cfg, log, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	inMemory := fs.Bool("memory", false, "keep data in memory instead of PostgreSQL")
	_ = fs.Parse(args)

	decimal.MarshalJSONWithoutQuotes = true

	var st store.Store
	if *inMemory {
		log.Warn("using in-memory store; data is lost on exit")
		st = store.NewMemory()
	} else {
		pool, err := db.Open(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer pool.Close()

		// Set AUTO_MIGRATE=1 (or "true") to apply migrations on boot.
		if v := strings.TrimSpace(os.Getenv("AUTO_MIGRATE")); v == "1" || strings.EqualFold(v, "true") {
			if err := applyMigrations(ctx, pool, log); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		st = store.NewPostgres(pool)
	}

	broadcaster := realtime.NewBroadcaster(log,
		realtime.WithHeartbeat(cfg.Realtime.HeartbeatInterval),
		realtime.WithBuffer(cfg.Realtime.SubscriberBuffer),
	)
	go broadcaster.Run(ctx)

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		api, err := bot.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return err
		}
		notifier := bot.NewNotifier(api, cfg.Telegram.ChatID, st, log, 0)
		if _, err := broadcaster.Subscribe(notifier); err != nil {
			return fmt.Errorf("subscribe notifier: %w", err)
		}
		go notifier.Run(ctx)
		log.Info("telegram notifier enabled", "chatID", cfg.Telegram.ChatID)
	}

	geocoder := services.NewNominatimGeocoder(cfg.Geocoding, log)
	zones := services.DefaultZoneTable()

	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET not set; staff routes are open")
	}
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	routes.RegisterRoutes(r, routes.Deps{
		Store:        st,
		Orders:       services.NewOrderService(st, broadcaster, log),
		Delivery:     services.NewDeliveryService(geocoder, zones, cfg.Delivery, log),
		Auth:         services.NewAuthService(st, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Geocoder:     geocoder,
		Broadcaster:  broadcaster,
		JWTSecret:    cfg.Auth.JWTSecret,
		AllowOrigins: cfg.HTTP.AllowOrigins,
		Log:          log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", "addr", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	pool, err := db.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()
	return applyMigrations(ctx, pool, log)
}

func runAddUser(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("adduser", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	whatsapp := fs.String("whatsapp", "", "login phone number")
	role := fs.String("role", string(models.RoleKitchen), "admin, kitchen, motoboy, pos or customer")
	password := fs.String("password", "", "password (generated when empty)")
	_ = fs.Parse(args)

	pool, err := db.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	auth := services.NewAuthService(store.NewPostgres(pool), cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	u, plain, err := auth.Register(ctx, services.RegisterInput{
		Name:     *name,
		Whatsapp: *whatsapp,
		Role:     models.Role(*role),
		Password: *password,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created %s %s (%s)\n", u.Role, u.Name, u.Whatsapp)
	if *password == "" {
		fmt.Printf("Password: %s\n", plain)
	}
	return nil
}
