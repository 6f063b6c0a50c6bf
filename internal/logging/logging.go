// Package logging configures the process-wide structured logger.
package logging

import (
	"os"
	"strings"

	"github.com/phuslu/log"

	"finextract/internal/config"
)

// Setup installs the default logger from cfg. Format "json" writes one JSON
// object per line to stderr; anything else uses the console writer.
func Setup(cfg config.LogConfig) {
	level := log.ParseLevel(strings.ToLower(cfg.Level))

	var writer log.Writer
	if strings.EqualFold(cfg.Format, "json") {
		writer = &log.IOWriter{Writer: os.Stderr}
	} else {
		writer = &log.ConsoleWriter{
			ColorOutput:    isTerminal(),
			QuoteString:    true,
			EndWithMessage: true,
			Writer:         os.Stderr,
		}
	}

	log.DefaultLogger = log.Logger{
		Level:      level,
		Caller:     0,
		TimeFormat: "15:04:05.000",
		Writer:     writer,
	}
}

func isTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
