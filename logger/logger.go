package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Package-level loggers. They write to stdout until InitLoggers attaches the
// rotating log files, so packages can log from tests without setup.
var (
	InfoLogger  = newLogger(logrus.InfoLevel, os.Stdout)
	WarnLogger  = newLogger(logrus.WarnLevel, os.Stdout)
	ErrorLogger = newLogger(logrus.ErrorLevel, os.Stderr)
)

func newLogger(level logrus.Level, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	return l
}

func rotatingFile(dir, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
}

// InitLoggers points every logger at a rotating file under dir, mirrored to
// the console. An empty dir keeps console-only output.
func InitLoggers(dir string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		ErrorLogger.Errorf("Failed to create log directory %s: %v", dir, err)
		return
	}

	InfoLogger.SetOutput(io.MultiWriter(os.Stdout, rotatingFile(dir, "info.log")))
	WarnLogger.SetOutput(io.MultiWriter(os.Stdout, rotatingFile(dir, "warn.log")))
	ErrorLogger.SetOutput(io.MultiWriter(os.Stderr, rotatingFile(dir, "error.log")))

	InfoLogger.Infof("Loggers initialized, writing to %s", dir)
}
