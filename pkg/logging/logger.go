// Copyright (C) 2025 Concordia Labs (oss@concordialabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides namespaced structured loggers for the
// council engines.
//
// # Description
//
// The package is a thin layer over Go's standard slog: a single shared
// text handler writing to stderr (Unix CLI convention), a process-wide
// level, and per-component child loggers tagged with a "component"
// attribute:
//
//	logger := logging.Get("council.optimizer")
//	logger.Debug("candidate evaluated", "m", m, "loss", total)
//
// The initial level is read from CONCORDIA_LOG_LEVEL (debug, info, warn,
// error); it defaults to info. Exporter and file layers are host-process
// concerns and deliberately out of scope for a library.
//
// # Thread Safety
//
// All functions are safe for concurrent use.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu    sync.Mutex
	base  *slog.Logger
	out   io.Writer = os.Stderr
	level           = new(slog.LevelVar)
)

// Get returns a logger tagged with the given component name.
func Get(component string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		level.Set(levelFromEnv())
		base = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	}
	return base.With("component", component)
}

// SetLevel adjusts the process-wide minimum level.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// SetOutput redirects all subsequent loggers to w. Intended for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	base = nil
}

// levelFromEnv maps CONCORDIA_LOG_LEVEL to a slog level, defaulting to
// info on empty or unrecognized values.
func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("CONCORDIA_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
