// Package slogx carries small slog attribute helpers shared across the
// codebase.
package slogx

import "log/slog"

// Error returns the conventional error attribute: key "error", value
// the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}
