package cmd

import (
	"go.uber.org/zap"

	"github.com/mkarolys/handbox/internal/config"
	"github.com/mkarolys/handbox/internal/logging"
)

// buildLogger constructs the daemon logger from the config file's logging
// section.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format)
}
