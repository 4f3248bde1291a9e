// Package errors provides cleanup helpers shared by docteur packages.
package errors

import (
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// DeferClose properly closes an io.Closer with logging.
// Use this in defer statements to avoid suppressing close errors.
// Closing an already closed file is not reported.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Warn().Err(err).Msg(msg)
	}
}

// CloseAll closes every non-nil closer, logging failures under msg.
func CloseAll(logger zerolog.Logger, msg string, closers ...io.Closer) {
	for _, c := range closers {
		DeferClose(logger, c, msg)
	}
}
