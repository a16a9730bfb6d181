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

	"github.com/coalalib/casan"
	"github.com/coalalib/casan/bridge"
	"github.com/coalalib/casan/config"
	"github.com/goccy/go-yaml"
	log "github.com/ndmsystems/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the master",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := config.LoadEnv()
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = e.Config
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg.ApplyEnv(e)

		verbose, _ := cmd.Flags().GetBool("verbose")
		lvl, err := e.Level(verbose)
		if err != nil {
			return err
		}
		log.SetLevel(lvl, "")
		if lvl == log.DEBUG {
			if out, err := yaml.Marshal(cfg); err == nil {
				log.Debug(fmt.Sprintf("configuration from %s:\n%s", path, out))
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("config", "c", "", "configuration file (default $CASAN_CONFIG or /etc/casan/casan.yaml)")
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}

func run(ctx context.Context, cfg *config.Config) error {
	links, err := cfg.OpenLinks(nil)
	if err != nil {
		return err
	}

	engine := casan.NewEngine(cfg.EngineOptions(), links, cfg.SlaveConfigs())
	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           bridge.New(engine, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		log.Info(fmt.Sprintf("http bridge listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error(fmt.Sprintf("casand: %s", err))
		return err
	}
	log.Info("casand stopped")
	return nil
}
