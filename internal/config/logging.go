package config

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LogConfig selects the level and output format of server logs.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Minimum level of logged events"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Log line format: json, plain text, or colored text"`
}

var formatters = map[string]func() log.Formatter{
	"json":  func() log.Formatter { return &log.JSONFormatter{} },
	"text":  func() log.Formatter { return &log.TextFormatter{DisableColors: true, FullTimestamp: true} },
	"color": func() log.Formatter { return &log.TextFormatter{ForceColors: true, FullTimestamp: true} },
}

// Apply sets the formatter and level of |logger|.
func (c LogConfig) Apply(logger *log.Logger) error {
	var fmtFn, ok = formatters[c.Format]
	if !ok {
		return errors.Errorf("unknown log format %q", c.Format)
	}
	lvl, err := log.ParseLevel(c.Level)
	if err != nil {
		return errors.WithMessage(err, "log level")
	}
	logger.SetFormatter(fmtFn())
	logger.SetLevel(lvl)
	return nil
}

// InitLog applies |cfg| to the standard logger, which every package of
// the server logs through.
func InitLog(cfg LogConfig) error { return cfg.Apply(log.StandardLogger()) }
