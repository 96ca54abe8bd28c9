package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"

	"github.com/clinicride/escort-booking/internal/config"
	"github.com/clinicride/escort-booking/internal/database"
	"github.com/clinicride/escort-booking/internal/handler"
	"github.com/clinicride/escort-booking/internal/middleware"
	"github.com/clinicride/escort-booking/internal/model"
	"github.com/clinicride/escort-booking/internal/presence"
	"github.com/clinicride/escort-booking/internal/queue"
	"github.com/clinicride/escort-booking/internal/repository"
	"github.com/clinicride/escort-booking/internal/router"
	"github.com/clinicride/escort-booking/internal/service"
	"github.com/clinicride/escort-booking/internal/utils"
)

func main() {
	var (
		envFile    = pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
		migrate    = pflag.Bool("migrate", false, "apply the embedded schema before serving")
		addr       = pflag.String("addr", "", "listen address (default :APP_PORT)")
		issueToken = pflag.String("issue-token", "", "print an access token for USER_ID:ROLE and exit (local testing)")
	)
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	cfg := config.Load()
	if *issueToken != "" {
		if err := printToken(cfg, *issueToken); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}
	if err := run(cfg, *migrate, *addr, log); err != nil {
		log.Error("server_exit", "err", err)
		os.Exit(1)
	}
}

func printToken(cfg config.Config, arg string) error {
	uid, rawRole, ok := strings.Cut(arg, ":")
	role, valid := model.ParseRole(strings.ToUpper(rawRole))
	if !ok || uid == "" || !valid {
		return fmt.Errorf("--issue-token wants USER_ID:ROLE, got %q", arg)
	}
	tok, err := utils.NewAccessToken(cfg.JWTSecret, uid, role, cfg.AccessTTLMin)
	if err != nil {
		return err
	}
	fmt.Println(tok.Token)
	return nil
}

func run(cfg config.Config, migrate bool, addr string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	brokerCfg, err := config.LoadBrokerConfig()
	if err != nil {
		return err
	}
	presenceCfg, err := config.LoadPresenceConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema_applied")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis_unavailable", "effect", "rate limiting and catalog cache disabled")
	} else {
		defer rdb.Close()
	}

	bookings := repository.NewBookingRepo(db)
	patients := repository.NewPatientRepo(db)
	guardians := repository.NewGuardianRepo(db)
	catalog := repository.NewCatalogRepo(db)
	users := repository.NewUserRepo(db)

	// The hub needs the guard for joins and the engine needs a sink that
	// reaches the hub, so the guard is built first.
	guard := &service.Guard{Patients: patients, Guardians: guardians, Bookings: bookings}
	hub := presence.NewHub(func(token string) (presence.Identity, error) {
		claims, err := utils.ParseAccessToken(cfg.JWTSecret, token)
		if err != nil {
			return presence.Identity{}, fmt.Errorf("%w: %v", presence.ErrInvalidToken, err)
		}
		return presence.Identity{UserID: claims.UserID, Role: claims.Role}, nil
	}, presence.Options{
		SendBuffer:   presenceCfg.SendBuffer,
		WriteTimeout: presenceCfg.WriteTimeout,
		Authorize:    guard.CanJoinBooking,
		Logger:       log.With("component", "presence"),
	})
	go hub.Run(ctx)

	var sink queue.Sink = queue.DirectSink{Pusher: hub}
	if brokerCfg.Enabled {
		pub := queue.NewPublisher(brokerCfg.URL, brokerCfg.Exchange, log.With("component", "events"))
		defer pub.Close()
		sink = pub
		consumer := &queue.Consumer{
			URL:      brokerCfg.URL,
			Exchange: brokerCfg.Exchange,
			Handle:   func(ev queue.BookingEvent) { queue.Dispatch(hub, ev) },
			Log:      log.With("component", "events"),
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event_consumer_stopped", "err", err)
			}
		}()
	}

	svc := service.NewBookingService(bookings, patients, guardians, catalog, sink, log.With("component", "booking"))
	accounts := service.NewAccountService(users, svc.Guard())

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.LoggerWithConfig(echomw.LoggerConfig{
		Format: `{"time":"${time_rfc3339_nano}","id":"${id}","method":"${method}","uri":"${uri}",` +
			`"status":${status},"latency":"${latency_human}","error":"${error}"}` + "\n",
	}))

	router.RegisterRoutes(e, db)
	router.RegisterCatalog(e, handler.NewCatalogHandler(catalog, log),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log))
	router.RegisterAccount(e, handler.NewAccountHandler(accounts, log), cfg.JWTSecret)
	router.RegisterBooking(e, handler.NewBookingHandler(svc, log), cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterPresence(e, presenceCfg.Path, hub.Handler(presenceCfg.AllowedOrigins))

	if addr == "" {
		addr = ":" + cfg.Port
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "broker", brokerCfg.Enabled)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
