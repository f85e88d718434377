package sfutils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

// LogEnv overrides the log level when set.
const LogEnv = "SCAFFOLD_LOG"

type logOptions struct {
	file string
}

type LogOption func(*logOptions)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// WithLogFile adds a rotating file sink next to the console writer.
func WithLogFile(path string) LogOption {
	return func(o *logOptions) { o.file = path }
}

// ConfigLogging configures the logging level and format
func ConfigLogging(debug *bool, opts ...LogOption) io.Closer {
	o := logOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	var closer io.Closer = nopCloser{}
	if o.file != "" {
		lj := &lumberjack.Logger{
			Filename:   o.file,
			MaxSize:    15, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, lj)
		closer = lj
	}

	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()

	if debug != nil && *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return closer
	}

	if logLevel, ok := os.LookupEnv(LogEnv); ok {
		switch strings.ToLower(logLevel) {
		case "debug":
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		case "trace":
			zerolog.SetGlobalLevel(zerolog.TraceLevel)
		case "error":
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		case "info":
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		default:
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			log.Warn().Msgf("Invalid log level: %s", logLevel)
		}
		return closer
	}

	// default log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return closer
}

// LoadYAML decodes the YAML file at path into v. A missing file is not an error.
func LoadYAML(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("config file not found")
			return nil
		}
		return fmt.Errorf("failed to read config (%s): %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse config (%s): %w", path, err)
	}
	return nil
}

// ReadSecret returns the trimmed contents of ~/.secrets/<name>, or "" if absent.
func ReadSecret(name string) string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	key, err := os.ReadFile(filepath.Join(homedir, ".secrets", name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(key))
}
