// Command notifyd runs the reference notification backend.
//
//	notifyd [serve] [--listen :1100] [--db-driver sqlite|postgres] [--db-dsn ...]
//	notifyd token --user u-dev
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

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nhle/notification-sync/internal/backend"
	"github.com/nhle/notification-sync/internal/logging"
	"github.com/nhle/notification-sync/internal/model"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "notifyd:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cmd := "serve"
	if len(args) > 0 && (args[0] == "serve" || args[0] == "token") {
		cmd, args = args[0], args[1:]
	}

	fs := pflag.NewFlagSet("notifyd", pflag.ContinueOnError)
	configPath := fs.String("config", model.DefaultConfigPath(), "path to config file")
	fs.String("listen", "", "listen address")
	fs.String("db-driver", "", "database driver (sqlite or postgres)")
	fs.String("db-dsn", "", "database DSN")
	fs.String("jwt-secret", "", "token signing secret")
	fs.String("log-level", "", "log level")
	fs.String("log-file", "", "log file (default stderr)")
	user := fs.String("user", "", "user id to mint a token for (token command)")
	ttl := fs.Duration("ttl", backend.DefaultTokenTTL, "token lifetime (token command)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := model.LoadConfig(*configPath, fs)
	if err != nil {
		return err
	}

	if cmd == "token" {
		if *user == "" {
			return errors.New("token: --user is required")
		}
		tok, err := backend.IssueToken([]byte(cfg.Backend.JWTSecret), *user, *ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	}

	return serve(cfg)
}

func serve(cfg *model.AppConfig) error {
	log, closer, err := logging.New(cfg.Log, logging.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := backend.Open(ctx, cfg.Backend.Database.Driver, cfg.Backend.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	seeded, err := db.Seed(ctx, backend.SeedUsers)
	if err != nil {
		return err
	}
	if seeded > 0 {
		log.Info().Int("users", seeded).Msg("seeded users")
	}

	srv := backend.NewServer(db, []byte(cfg.Backend.JWTSecret), log)
	httpSrv := &http.Server{
		Addr:              cfg.Backend.Listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("listen", cfg.Backend.Listen).
			Str("driver", cfg.Backend.Database.Driver).
			Msg("notifyd listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	srv.Hub().Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
