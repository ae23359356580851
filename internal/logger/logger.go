// ABOUTME: Structured logging for the bridge and its tools
// ABOUTME: zap core with lumberjack file rotation and an optional console tee
package logger

import (
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls log level and file rotation.
type Config struct {
	Level      string `yaml:"level"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	// Console tees log lines to stdout/stderr in addition to the file.
	Console bool `yaml:"console"`
}

// Lg is the process-wide logger. It is usable before Init.
var Lg *zap.Logger

func init() {
	initDefaultLogger()
}

func initDefaultLogger() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	logger, err := config.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		Lg = zap.NewNop()
		return
	}
	Lg = logger
}

// Init replaces Lg according to cfg. In "dev" mode log lines are also
// written to the console in a colored, human-readable encoding.
func Init(cfg *Config, mode string) error {
	level := new(zapcore.Level)
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return err
	}

	var cores []zapcore.Core
	if cfg.Filename != "" {
		if dir := filepath.Dir(cfg.Filename); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder(), fileWriter(cfg), level))
	}

	if cfg.Console || cfg.Filename == "" {
		var enc zapcore.Encoder
		if mode == "dev" || mode == "development" {
			enc = consoleEncoder()
		} else {
			enc = jsonEncoder()
		}
		high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.ErrorLevel && l >= *level
		})
		low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l < zapcore.ErrorLevel && l >= *level
		})
		cores = append(cores,
			zapcore.NewCore(enc, zapcore.Lock(os.Stdout), low),
			zapcore.NewCore(enc, zapcore.Lock(os.Stderr), high),
		)
	}

	Lg = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return nil
}

func jsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func consoleEncoder() zapcore.Encoder {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + t.Format("2006-01-02 15:04:05.000") + "\x1b[0m")
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func fileWriter(cfg *Config) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		LocalTime:  true,
	})
}

// Named returns a child of Lg tagged with a component name.
func Named(name string) *zap.Logger {
	return Lg.WithOptions(zap.AddCallerSkip(-1)).Named(name)
}

// Info logs at info level.
func Info(msg string, fields ...zap.Field) {
	Lg.Info(msg, fields...)
}

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) {
	Lg.Warn(msg, fields...)
}

// Error logs at error level.
func Error(msg string, fields ...zap.Field) {
	Lg.Error(msg, fields...)
}

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) {
	Lg.Debug(msg, fields...)
}

// Fatal logs and exits.
func Fatal(msg string, fields ...zap.Field) {
	Lg.Fatal(msg, fields...)
}

// Sync flushes buffered log entries.
func Sync() {
	if Lg != nil {
		_ = Lg.Sync()
	}
}
