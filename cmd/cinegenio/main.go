package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"cinegenio/api"
	"cinegenio/config"
	"cinegenio/handlers"
	"cinegenio/internal/database"
	"cinegenio/internal/logging"
	"cinegenio/utils"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "cinegenio",
		Short:        "Release radar for movies and series",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	load := func() (*config.Config, io.Closer, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		closer, err := logging.Setup(cfg.Logging)
		if err != nil {
			return nil, nil, fmt.Errorf("setup logging: %w", err)
		}
		return cfg, closer, nil
	}

	cmd.AddCommand(serveCmd(load), refreshCmd(load), migrateCmd(load), importWatchedCmd(load))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cinegenio version %s\n", handlers.BackendVersion())
		},
	})
	return cmd
}

type loader func() (*config.Config, io.Closer, error)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background radar refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := load()
			if err != nil {
				return err
			}
			defer closer.Close()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := api.NewIPRateLimiter(a.cfg.Server.RefreshRatePerMinute)
	defer limiter.Stop()
	if err := limiter.TrustProxies(a.cfg.Server.TrustedProxies); err != nil {
		return err
	}

	router := utils.NewRouter(utils.NewOriginPolicy(a.cfg.Server.CORSOrigins))
	handlers.Routes{
		Radar:        handlers.NewRadarHandler(a.radar),
		Catalog:      handlers.NewCatalogHandler(a.catalog),
		Calendar:     handlers.NewCalendarHandler(a.calendar),
		RefreshLimit: limiter.Middleware(),
	}.Register(router)

	if interval := a.cfg.Radar.BackgroundInterval; interval > 0 {
		a.radar.StartBackgroundRefresh(interval)
	} else {
		log.Printf("[radar] background refresh disabled")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[http] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("[http] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func refreshCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one refresh cycle and print its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := load()
			if err != nil {
				return err
			}
			defer closer.Close()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.radar.Refresh(cmd.Context())
			if result != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(result); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}
}

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := load()
			if err != nil {
				return err
			}
			defer closer.Close()

			if cfg.Storage.Driver != "sqlite" {
				return fmt.Errorf("migrate needs the sqlite driver, got %q", cfg.Storage.Driver)
			}
			db, err := database.NewDB(database.Config{DatabasePath: cfg.Storage.Path})
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

func importWatchedCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "import-watched <file.json|->",
		Short: "Replace the watched collection used for the taste profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := load()
			if err != nil {
				return err
			}
			defer closer.Close()

			in, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			store, db, err := openStore(cfg.Storage)
			if err != nil {
				return err
			}
			defer db.Close()
			defer store.Close()

			n, err := importWatched(cmd.Context(), store, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d watched items\n", n)
			return nil
		},
	}
}
