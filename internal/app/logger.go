package app

import (
	"strings"

	"github.com/carecircle/carecircle/pkg/logger"
)

// ConfigureLogging initialises the global zap logger at the configured
// level; an empty level means info.
func ConfigureLogging(level string) error {
	if level = strings.TrimSpace(level); level == "" {
		level = "info"
	}
	return logger.Init(level)
}
