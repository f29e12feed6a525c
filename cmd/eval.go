// File: cmd/eval.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/bridge"
	"github.com/xkilldash9x/webbridge/internal/config"
	"github.com/xkilldash9x/webbridge/internal/observability"
)

func newEvalCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "eval <script>",
		Short: "Evaluate a script body in the page and print its result",
		Long: `Evaluate runs the arguments, joined by spaces, as the body of an async
function in the page and prints the stringified return value.

  webbridge eval 'return document.title'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if timeout == 0 {
				timeout = cfg.Bridge().EvalTimeout
			}
			return evalScript(cmd.Context(), cfg, observability.GetLogger(), strings.Join(args, " "), timeout, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "evaluation timeout (default is bridge.eval_timeout, rounded up to whole seconds)")
	return cmd
}

func evalScript(ctx context.Context, cfg config.Interface, logger *zap.Logger, script string, timeout time.Duration, out io.Writer) error {
	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close(shutdownTimeout)

	if err := s.show(ctx, s.startURL()); err != nil {
		return err
	}
	if err := s.waitConnected(ctx); err != nil {
		return err
	}

	ok, result := s.bridge.InvokeAndWait(script, timeout)
	if !ok {
		return &bridge.ScriptError{Script: script, Message: string(result)}
	}
	fmt.Fprintln(out, string(result))
	return nil
}
