package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/circleboard/pkg/api"
	"github.com/ethpandaops/circleboard/pkg/poller"
	"github.com/spf13/cobra"
)

var noPoll bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the background poller",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&noPoll, "no-poll", false,
		"disable background synchronization")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	var p poller.Poller
	if !noPoll {
		p = poller.NewPoller(log, rt.svc, rt.cfg.Sync.IntervalDuration())
	}

	srv := api.NewServer(log, rt.cfg, rt.svc, p)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}
