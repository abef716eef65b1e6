package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger returns a no-op logger unless verbose is set. Verbose runs append
// JSON lines to info.log (Info and above) and debug.log (everything) in dir,
// creating it if needed. The returned close func syncs and closes both files.
func newLogger(verbose bool, dir string) (*zap.Logger, func() error, error) {
	if !verbose {
		return zap.NewNop(), func() error { return nil }, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	info, err := openLogFile(filepath.Join(dir, "info.log"))
	if err != nil {
		return nil, nil, err
	}
	debug, err := openLogFile(filepath.Join(dir, "debug.log"))
	if err != nil {
		_ = info.Close()
		return nil, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(info), zap.InfoLevel),
		zapcore.NewCore(enc.Clone(), zapcore.Lock(debug), zap.DebugLevel),
	)
	logger := zap.New(core)

	closeFn := func() error {
		_ = logger.Sync()
		errInfo := info.Close()
		errDebug := debug.Close()
		if errInfo != nil {
			return errInfo
		}
		return errDebug
	}
	return logger, closeFn, nil
}

func openLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
