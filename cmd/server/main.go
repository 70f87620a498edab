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
	_ "time/tzdata"

	"github.com/rs/zerolog/log"

	"lunamatcha/backend/internal/analytics"
	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/config"
	"lunamatcha/backend/internal/daylock"
	"lunamatcha/backend/internal/httpapi"
	"lunamatcha/backend/internal/ledger"
	"lunamatcha/backend/internal/logging"
	"lunamatcha/backend/internal/service"
	"lunamatcha/backend/internal/store"
	"lunamatcha/backend/internal/store/memory"
	pgstore "lunamatcha/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogPretty)

	loc, err := validateRuntimeConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		if cfg.DBMigrate {
			if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
				log.Fatal().Err(err).Msg("database migration failed")
			}
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, loc)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.New()
		log.Warn().Msg("repository: in-memory, data is lost on restart")
	}

	var locker daylock.Locker = daylock.NewLocal()
	if cfg.RedisAddr != "" {
		redisLock := daylock.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DayLockTTL())
		if err := redisLock.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process day lock")
			_ = redisLock.Close()
		} else {
			locker = redisLock
			closers = append(closers, redisLock.Close)
			log.Info().Msg("day lock: redis")
		}
	} else {
		log.Info().Msg("day lock: in-process")
	}

	resolver := bucket.NewResolver(loc)
	shifts := ledger.New(repo, resolver, locker)
	svc := service.New(repo, shifts, resolver, service.Options{LedgerTimeout: cfg.LedgerTimeout()})
	rollup := analytics.New(repo, resolver, time.Now)
	api := httpapi.New(svc, rollup, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout(),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("timezone", loc.String()).Msg("backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// validateRuntimeConfig rejects settings that would make day bucketing or
// the ledger refresh misbehave, and returns the operator's location.
func validateRuntimeConfig(cfg config.Config) (*time.Location, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	if cfg.LedgerTimeout() >= cfg.RequestTimeout() {
		return nil, fmt.Errorf("LEDGER_TIMEOUT_SECONDS must be lower than REQUEST_TIMEOUT_SECONDS")
	}
	if cfg.RedisAddr != "" && cfg.DayLockTTL() < cfg.LedgerTimeout() {
		return nil, fmt.Errorf("DAY_LOCK_TTL_SECONDS must be at least LEDGER_TIMEOUT_SECONDS")
	}
	return loc, nil
}
