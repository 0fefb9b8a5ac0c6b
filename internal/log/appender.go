package log

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/natefinch/lumberjack.v2"
)

// MultiWriter fans log output out to every configured appender.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

// fileAppenderOptions configure the rotating collector log file.
type fileAppenderOptions struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// AddAppender resolves one AppenderConfig into a writer.
func (m *MultiWriter) AddAppender(cfg AppenderConfig) error {
	switch cfg.Type {
	case "console", "":
		m.Add(os.Stdout)
		return nil
	case "file":
		var opt fileAppenderOptions
		if err := mapstructure.Decode(cfg.Options, &opt); err != nil {
			return fmt.Errorf("decode file appender options: %w", err)
		}
		if opt.Filename == "" {
			return fmt.Errorf("file appender requires a filename")
		}
		m.Add(&lumberjack.Logger{
			Filename:   opt.Filename,
			MaxSize:    opt.MaxSizeMB,
			MaxAge:     opt.MaxAgeDays,
			MaxBackups: opt.MaxBackups,
			Compress:   opt.Compress,
		})
		return nil
	default:
		return fmt.Errorf("unknown appender type: %s", cfg.Type)
	}
}
