// File: cmd/demo.go
package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/api/schemas"
	"github.com/xkilldash9x/webbridge/internal/bridge"
)

// registerDemo exposes the functions the demo page calls and listens for
// clicks on its button.
func registerDemo(s *session) error {
	logger := s.logger.Named("demo")

	if _, err := s.bridge.RegisterFunction("log", func(args string) {
		logger.Info("Page log.", zap.String("args", args))
	}); err != nil {
		return err
	}

	if _, err := s.bridge.RegisterDescriptor(bridge.Descriptor{
		Name: "add",
		Params: []bridge.Param{
			{Name: "a", Kind: bridge.ParamFloat},
			{Name: "b", Kind: bridge.ParamFloat, Default: 0},
		},
		Return: func(_ context.Context, args bridge.Args) (any, error) {
			return args.Float(0) + args.Float(1), nil
		},
	}); err != nil {
		return err
	}

	if _, err := s.bridge.RegisterAsyncFunction("hostTime", func(context.Context, string) (string, error) {
		return time.Now().UTC().Format(time.RFC3339), nil
	}); err != nil {
		return err
	}

	_, err := s.proxy.AddEventListener("click", "go", func(ev schemas.CapturedEvent) {
		logger.Info("Button clicked.",
			zap.String("target", ev.CurrentTargetID),
			zap.Any("props", ev.AdditionalProps.Map()),
		)
	}, nil,
		schemas.Capture{Label: "button", Path: "button"},
		schemas.Capture{Label: "ctrl", Path: "ctrlKey"},
	)
	return err
}
