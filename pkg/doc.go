// Package pkg provides shared utilities for the softmmc host controller core.
//
// This package contains common functionality used by the host engine and
// every hardware backend, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for controller and transfer failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component tag:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentDMA, "descriptor ring ready", "entries", 128)
//
// # Errors
//
// Controller errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrResetTimeout) {
//	    // Controller never came out of reset
//	}
package pkg
