package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Options controls logger construction.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // text | json
	Out    io.Writer
}

// New builds a logrus logger: text with full timestamps by default, JSON when requested.
func New(o Options) *logrus.Logger {
	log := logrus.New()
	if o.Out != nil {
		log.SetOutput(o.Out)
	} else {
		log.SetOutput(os.Stdout)
	}

	if strings.EqualFold(o.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetLevel(ParseLevel(o.Level))
	return log
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
