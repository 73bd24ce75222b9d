// Package logx configures the process-wide zerolog logger.
package logx

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level        string `split_words:"true" default:"info"`
	PrettyFormat bool   `split_words:"true" default:"false"`
}

// Init replaces the global logger. Unknown level strings fall back to info.
func Init(conf Config) {
	var w = zerolog.New(os.Stdout)
	if conf.PrettyFormat {
		w = zerolog.New(zerolog.NewConsoleWriter())
	}

	level, err := zerolog.ParseLevel(conf.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	log.Logger = w.Level(level).With().
		Timestamp().
		Caller().
		Stack().
		Logger()
}
