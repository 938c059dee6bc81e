// Package analyzer implements a two-phase batch analysis of a mail corpus.
//
// Phase one enumerates every file under each top-level subdirectory of the
// corpus into per-directory manifests, which are then concatenated into one
// unified manifest. Phase two parses the headers of every listed file and
// appends one "sender recipient..." record per mail to a shared record file.
// Both phases run on the same bounded worker Pool. The records are finally
// reduced into per-sender recipient counts and written as the report.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
)

// Analyze is the main entry point for the library: it builds an Engine from
// opts and runs it.
func Analyze(ctx context.Context, opts Options) (Report, error) {
	if opts.Logger == nil {
		return Report{}, fmt.Errorf("%w: Logger implementation cannot be nil", ErrConfigValidation)
	}
	engine, err := NewEngine(ctx, opts)
	if err != nil {
		slog.New(opts.Logger).Error("Invalid analysis options", slog.String("error", err.Error()))
		return Report{}, err
	}
	return engine.Run()
}
