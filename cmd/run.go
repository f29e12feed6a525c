// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webbridge/internal/config"
	"github.com/xkilldash9x/webbridge/internal/native/sim"
	"github.com/xkilldash9x/webbridge/internal/observability"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the demo page and serve host functions until the window closes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), cfg, observability.GetLogger(), cmd.OutOrStdout())
		},
	}
}

// runDemo shows the demo page and blocks until the window disconnects or ctx
// ends. On the sim backend the page is driven automatically and closed.
func runDemo(ctx context.Context, cfg config.Interface, logger *zap.Logger, out io.Writer) error {
	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close(shutdownTimeout)

	if err := registerDemo(s); err != nil {
		return fmt.Errorf("registering demo functions: %w", err)
	}
	url := s.startURL()
	if err := s.show(ctx, url); err != nil {
		return err
	}
	logger.Info("Window shown.", zap.String("url", url), zap.String("backend", cfg.Browser().Backend))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-s.disconnected:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	if cfg.Browser().Backend == config.BackendSim {
		g.Go(func() error { return driveSim(gctx, s, out) })
	}
	return g.Wait()
}

// driveSim plays the demo on a simulated page: a click, one host call made
// from the page, then close.
func driveSim(ctx context.Context, s *session, out io.Writer) error {
	if err := s.waitConnected(ctx); err != nil {
		return err
	}
	p, ok := s.lib.(*sim.Library).Page(s.win)
	if !ok {
		return fmt.Errorf("simulated page %d is gone", s.win)
	}
	// Let the reconnect re-expose the host functions first.
	p.Settle()

	if err := p.Click("go"); err != nil {
		return err
	}
	sum, err := s.bridge.Evaluate(ctx, "add", 2, 3)
	if err != nil {
		return fmt.Errorf("calling add from the page: %w", err)
	}
	fmt.Fprintf(out, "add(2, 3) = %s\n", sum)

	p.Settle()
	s.lib.Destroy(s.win)
	return nil
}
