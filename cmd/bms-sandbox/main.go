package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bloodlink.org/internal/auth"
	"bloodlink.org/internal/config"
	"bloodlink.org/internal/gateway"
	"bloodlink.org/internal/httpapi"
	"bloodlink.org/internal/obs"
	"bloodlink.org/internal/sim"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		noSeed     bool
	)
	cmd := &cobra.Command{
		Use:          "bms-sandbox",
		Short:        "Serve an in-memory blood marketplace backend for local use",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Sandbox.Addr = addr
			}
			if noSeed {
				cfg.Sandbox.Seed = false
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides sandbox.addr)")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "start with no demo accounts")
	return cmd
}

func run(cfg *config.Config) error {
	// Метрики и логгер до всего остального.
	obs.Init()
	obs.InitBuildInfo(version, commit)
	obs.ConfigureLogger(cfg.Logger.Level, cfg.Logger.Format, nil)
	log := obs.Logger()

	secret := []byte(cfg.Sandbox.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		log.Warn("sandbox.jwt_secret not set, tokens will not survive a restart")
	}
	issuer, err := auth.NewIssuer(secret)
	if err != nil {
		return err
	}
	backend := gateway.NewInMemory(issuer)
	if cfg.Sandbox.Seed {
		scenario := sim.CityHospitalScenario()
		if err := scenario.Seed(backend); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"scenario": scenario.Name,
			"accounts": len(scenario.Accounts) + len(scenario.Staff),
			"password": scenario.Password,
		}).Info("demo accounts seeded")
	}

	api := httpapi.New(backend, httpapi.WithVersion(version))
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.Handle("/", api.Handler())

	srv := &http.Server{
		Addr:              cfg.Sandbox.Addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.WithFields(logrus.Fields{"version": version, "addr": srv.Addr}).Info("starting bms-sandbox")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
