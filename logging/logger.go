package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var levelDesc = []string{"PANC", "FATL", "ERRO", "WARN", "INFO", "DEBG", "TRAC"}

// PlainFormatter writes "LEVEL timestamp message" lines. Fields attached
// with WithField are appended as key=value pairs.
type PlainFormatter struct {
	TimestampFormat string
	LevelDesc       []string
}

func (f *PlainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)

	level := "????"
	if idx := int(entry.Level); idx < len(f.LevelDesc) {
		level = f.LevelDesc[idx]
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s", level, timestamp, entry.Message)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Data[k])
	}
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

type Config struct {
	Debug      bool   `koanf:"debug"`
	Filename   string `koanf:"filename"`
	MaxSizeMB  int    `koanf:"max_size"` // MB
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age"` // Days
	Compress   bool   `koanf:"compress"`
}

func (cfg *Config) Validate() error {
	if cfg.MaxSizeMB < 0 {
		return fmt.Errorf("logging.max_size must not be negative, not %d", cfg.MaxSizeMB)
	}
	if cfg.MaxBackups < 0 {
		return fmt.Errorf("logging.max_backups must not be negative, not %d", cfg.MaxBackups)
	}
	return nil
}

// CreateLogger builds a logger writing to 'console' (stdout when nil) and,
// when a filename is configured, to a rotated logfile. The stdlib logger
// is redirected into the result.
func (cfg *Config) CreateLogger(rotate bool, console io.Writer) (*logrus.Logger, error) {
	if console == nil {
		console = os.Stdout
	}

	output := console

	if cfg.Filename != "" {
		if dir := filepath.Dir(cfg.Filename); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("couldn't create log directory '%s': %w", dir, err)
			}
		}

		lumberjackLogger := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}

		if rotate {
			lumberjackLogger.Rotate()
		}

		output = io.MultiWriter(console, lumberjackLogger)
	}

	logger := logrus.New()
	logger.SetFormatter(&PlainFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		LevelDesc:       levelDesc,
	})
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	logger.SetOutput(output)

	log.SetFlags(0)
	log.SetOutput(logger.Writer())

	return logger, nil
}
