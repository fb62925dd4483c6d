// Copyright 2023 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the leveled, structured logging used throughout
// the kernel: TRACE/DEBUG/INFO/WARNING/ERROR/OFF severities on top of
// log/slog, rendered as either text or JSON.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/oslab/easykernel/cfg"
	"github.com/oslab/easykernel/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// asyncLogBufferSize bounds how many pending log lines queue up behind the
// background file writer before new ones are dropped.
const asyncLogBufferSize = 1024

// Custom slog levels. slog only ships Debug/Info/Warn/Error; TRACE and OFF
// extend the range on either side.
const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelOff   slog.Level = 100
)

type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	format          string
	level           string
	logRotateConfig config.LogRotateConfig
}

var defaultLoggerFactory = &loggerFactory{
	format:          "json",
	level:           config.INFO,
	logRotateConfig: config.DefaultLogRotateConfig(),
}

var defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, levelVarFor(config.INFO), ""))

func levelVarFor(level string) *slog.LevelVar {
	v := new(slog.LevelVar)
	setLoggingLevel(level, v)
	return v
}

func levelToSeverity(l slog.Level) string {
	switch l {
	case LevelTrace:
		return config.TRACE
	case LevelDebug:
		return config.DEBUG
	case LevelInfo:
		return config.INFO
	case LevelWarn:
		return config.WARNING
	case LevelError:
		return config.ERROR
	default:
		return l.String()
	}
}

func (f *loggerFactory) createJsonOrTextHandler(buf io.Writer, programLevel *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: programLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				if f.format == "text" {
					return slog.String("time", a.Value.Time().Format("2006/01/02 15:04:05.000000"))
				}
				t := a.Value.Time()
				return slog.Attr{
					Key: "timestamp",
					Value: slog.GroupValue(
						slog.Int64("seconds", t.Unix()),
						slog.Int64("nanos", int64(t.Nanosecond())),
					),
				}
			case slog.LevelKey:
				level, _ := a.Value.Any().(slog.Level)
				return slog.String("severity", levelToSeverity(level))
			case slog.MessageKey:
				return slog.String("message", prefix+a.Value.String())
			}
			return a
		},
	}

	if f.format == "text" {
		return slog.NewTextHandler(buf, opts)
	}
	return slog.NewJSONHandler(buf, opts)
}

func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	case config.TRACE:
		programLevel.Set(LevelTrace)
	case config.DEBUG:
		programLevel.Set(LevelDebug)
	case config.WARNING:
		programLevel.Set(LevelWarn)
	case config.ERROR:
		programLevel.Set(LevelError)
	case config.OFF:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

// SetLogFormat switches the default logger's output format ("text" or
// "json"); anything other than "text" renders as JSON.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultWriter(), levelVarFor(defaultLoggerFactory.level), ""))
}

func defaultWriter() io.Writer {
	if defaultLoggerFactory.file != nil {
		return defaultLoggerFactory.file
	}
	return os.Stderr
}

// InitLogFile points the default logger at a rotating log file. legacyLogConfig
// carries the rotation policy; newLogConfig carries the file path, severity
// and format.
func InitLogFile(legacyLogConfig config.LogConfig, newLogConfig cfg.LoggingConfig) error {
	var f *os.File
	if newLogConfig.FilePath != "" {
		var err error
		f, err = os.OpenFile(string(newLogConfig.FilePath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
	}

	defaultLoggerFactory = &loggerFactory{
		file:            f,
		format:          newLogConfig.Format,
		level:           string(newLogConfig.Severity),
		logRotateConfig: legacyLogConfig.LogRotateConfig,
	}

	var out io.Writer = os.Stderr
	if f != nil {
		out = NewAsyncLogger(&lumberjack.Logger{
			Filename:   f.Name(),
			MaxSize:    legacyLogConfig.LogRotateConfig.MaxFileSizeMB,
			MaxBackups: legacyLogConfig.LogRotateConfig.BackupFileCount,
			Compress:   legacyLogConfig.LogRotateConfig.Compress,
		}, asyncLogBufferSize)
	}

	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(out, levelVarFor(defaultLoggerFactory.level), ""))
	return nil
}

func Tracef(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, args...))
}
