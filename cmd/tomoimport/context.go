package main

import (
	"io"
	"log/slog"
	"strings"

	"tomoimport/internal/logging"
	"tomoimport/pkg/config"
)

const defaultConfigPath = "tomoimport.yaml"

type commandContext struct {
	configFlag    *string
	logLevelFlag  *string
	logFormatFlag *string

	config *config.Config
}

func newCommandContext(configFlag, logLevelFlag, logFormatFlag *string) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		logLevelFlag:  logLevelFlag,
		logFormatFlag: logFormatFlag,
	}
}

func (c *commandContext) configPath() string {
	if path := strings.TrimSpace(*c.configFlag); path != "" {
		return path
	}
	return defaultConfigPath
}

// ensureConfig loads the configuration once and applies the logging flags.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	cfg, err := config.LoadConfig(c.configPath())
	if err != nil {
		return nil, err
	}
	if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
		cfg.Logging.Level = level
	}
	if format := strings.TrimSpace(*c.logFormatFlag); format != "" {
		cfg.Logging.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c.config = cfg
	return cfg, nil
}

func (c *commandContext) logger(w io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: w,
	})
}
