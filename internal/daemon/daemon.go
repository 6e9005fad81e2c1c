package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds daemon configuration
type Config struct {
	HTTPAddr string // Ops server listen address, empty disables it
}

// Daemon runs the scheduler and the optional ops HTTP server.
type Daemon struct {
	config    Config
	scheduler *Scheduler
	db        Pinger
	logger    zerolog.Logger
}

// New creates a new Daemon instance
func New(cfg Config, scheduler *Scheduler, db Pinger, logger zerolog.Logger) *Daemon {
	return &Daemon{
		config:    cfg,
		scheduler: scheduler,
		db:        db,
		logger:    logger.With().Str("component", "daemon").Logger(),
	}
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, finishing current cycle")
		cancel()

		// Second signal forces exit
		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	return d.RunContext(ctx)
}

// RunContext runs until ctx is cancelled or a component fails.
func (d *Daemon) RunContext(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	var ln net.Listener
	if d.config.HTTPAddr != "" {
		var err error
		ln, err = net.Listen("tcp", d.config.HTTPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", d.config.HTTPAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.scheduler.Run(gctx)
	})

	if ln != nil {
		srv := &http.Server{
			Handler:           NewRouter(d.scheduler, d.db, d.logger),
			ReadHeaderTimeout: 5 * time.Second,
		}

		d.logger.Info().Str("addr", ln.Addr().String()).Msg("Serving ops endpoints")

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()

	d.scheduler.Shutdown(context.Background())
	d.logger.Info().Msg("Daemon stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
