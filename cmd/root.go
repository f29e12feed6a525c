// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webbridge/internal/config"
	"github.com/xkilldash9x/webbridge/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// NewRootCommand builds a fresh command tree. Each call returns independent
// flag state, which keeps tests isolated.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := viper.New()

	root := &cobra.Command{
		Use:           "webbridge",
		Short:         "webbridge connects Go functions to an embedded browser page.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 1. Layer defaults, config file, environment and flags.
			config.SetDefaults(v)
			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// 2. Decode and validate.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// 3. Logger, then hand the config to subcommands.
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting webbridge.", zap.String("version", Version))
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	root.SetVersionTemplate("{{printf \"%s version %s\\n\" .Name .Version}}")

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.String("backend", "", "browser backend: cdp or sim")
	flags.Bool("debug", false, "log every bridge message in the page")
	flags.Bool("headless", true, "run the browser without a window")
	flags.String("url", "", "start URL (default is the built-in demo page)")
	flags.String("dispatcher", "", "handler dispatch: direct or serial")

	root.AddCommand(newRunCmd(), newEvalCmd(), newVersionCmd())
	return root
}

// initializeConfig reads the config file and binds WEBBRIDGE_* variables and
// the persistent flags into v. Flags only override when set.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	config.BindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for key, flag := range map[string]string{
		"browser.backend":   "backend",
		"bridge.debug":      "debug",
		"browser.headless":  "headless",
		"browser.start_url": "url",
		"bridge.dispatcher": "dispatcher",
	} {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// configFrom returns the config stored by the root pre-run.
func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}

// Execute runs the command tree with ctx and reports failures on stderr.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}
