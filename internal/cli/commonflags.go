package cli

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

func addLogFlags(flags *flag.FlagSet) {
	flags.Var(NewLogLevelFlag(), "log-level", "set the log level")
	flags.Var(NewLogFormatFlag(), "log-format", "set the log format (text, json)")
}

// LogLevelFlag sets the level of the default logger.
// It implements both flag.Value and pflag.Value.
type LogLevelFlag struct {
	value string
}

func NewLogLevelFlag() *LogLevelFlag {
	return &LogLevelFlag{value: "INFO"}
}

func (f *LogLevelFlag) Set(s string) error {
	var level slog.Level

	switch s {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		return fmt.Errorf("unsupported log level %q provided. supported log levels are DEBUG, INFO, WARN, ERROR", s)
	}

	f.value = s
	logLevel.Set(level)
	slog.SetLogLoggerLevel(level)

	return nil
}

func (f *LogLevelFlag) String() string {
	return f.value
}

func (f *LogLevelFlag) Type() string {
	return "LEVEL"
}

// LogFormatFlag replaces the default logger with a text or JSON handler.
type LogFormatFlag struct {
	value string
}

func NewLogFormatFlag() *LogFormatFlag {
	return &LogFormatFlag{}
}

func (f *LogFormatFlag) Set(s string) error {
	opts := &slog.HandlerOptions{Level: logLevel}

	switch s {
	case "text":
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	default:
		return fmt.Errorf("unsupported log format %q provided. supported log formats are text, json", s)
	}

	f.value = s

	return nil
}

func (f *LogFormatFlag) String() string {
	return f.value
}

func (f *LogFormatFlag) Type() string {
	return "FORMAT"
}
