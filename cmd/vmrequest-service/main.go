package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dcm-project/vmrequest-service/internal/config"
)

func main() {
	// Bootstrap logger until the configuration is known
	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)
	defer func() { _ = zap.L().Sync() }()

	rootCmd.AddCommand(runCmd, freeIPsCmd, checkCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "vmrequest-service",
	Short:        "Collects VM requests and forwards them to the VSOS operators",
	SilenceUsage: true,
}

// loadConfig reads the configuration and installs the logger it asks for.
func loadConfig() (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Service.LogLevel, cfg.Deployment)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return cfg, nil
}

func newLogger(level string, deployment config.Deployment) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid LOG_LEVEL %q: %w", config.ErrConfigurationMissing, level, err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if deployment.IsProd() {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = atomicLevel
	return zcfg.Build()
}
