// Package oplog builds the console logger and the persisted per-operation log
// files written under sourcedata/bidsonym/<operation>_logs.
package oplog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carbocation/pfx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/staging"
)

const timestampLayout = "20060102T150405"

var banner = strings.Repeat("=", 80)

// NewConsole returns a human-readable logger on stderr.
func NewConsole(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), level))
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeCaller = nil
	cfg.CallerKey = ""
	return cfg
}

// Path returns the log file path for an operation on a unit:
// sourcedata/bidsonym/<op>_logs/sub-<s>/sub-<s>[_ses-<x>]_desc-<op>_<ts>.log.
func Path(bidsRoot, subject, session, operation string, at time.Time) string {
	name := "sub-" + subject
	if session != "" {
		name += "_ses-" + session
	}
	name += "_desc-" + operation + "_" + at.Format(timestampLayout) + ".log"

	return filepath.Join(staging.ToolRoot(bidsRoot), operation+"_logs", "sub-"+subject, name)
}

// Log is a logger that writes to the console logger it was built from and to
// a per-operation file.
type Log struct {
	*zap.Logger
	Path string
	file *os.File
}

// New opens the operation log for a unit and writes its banner. If the file
// cannot be created, a warning is logged and the returned Log writes to the
// console only.
func New(console *zap.Logger, bidsRoot, subject, session, operation string, at time.Time) *Log {
	path := Path(bidsRoot, subject, session, operation, at)

	file, err := create(path)
	if err != nil {
		console.Warn("could not create operation log; logging to console only", zap.String("path", path), zap.Error(err))
		return &Log{Logger: console}
	}

	sessionLabel := "none"
	if session != "" {
		sessionLabel = "ses-" + session
	}
	fmt.Fprintln(file, banner)
	fmt.Fprintf(file, "BIDSonym %s log (version %s)\n", cases.Title(language.English).String(operation), bidsonym.Version)
	fmt.Fprintf(file, "Started: %s\n", at.Format(time.RFC3339))
	fmt.Fprintf(file, "Subject: sub-%s\n", subject)
	fmt.Fprintf(file, "Session: %s\n", sessionLabel)
	fmt.Fprintf(file, "BIDS directory: %s\n", bidsRoot)
	fmt.Fprintf(file, "Log file: %s\n", path)
	fmt.Fprintln(file, banner)

	fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(file), zapcore.DebugLevel)
	logger := console.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))

	logger.Info("operation log started", zap.String("operation", operation), zap.String("log", path))
	return &Log{Logger: logger, Path: path, file: file}
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pfx.Err(err)
	}
	f, err := os.Create(path)
	return f, pfx.Err(err)
}

// Close flushes and closes the file. The console logger stays usable.
func (l *Log) Close() error {
	_ = l.Logger.Sync()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return pfx.Err(err)
}
