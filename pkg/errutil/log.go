// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level through ctx, so handlers that read the
// active span can correlate the record. attrs are appended as-is.
// For oops errors the code and merged context are logged next to the message.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields, attrs...)

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, append(fields, "error", err)...)
		return
	}
	fields = append(fields, "error", oopsErr.Error())
	if code := oopsErr.Code(); code != nil {
		fields = append(fields, "code", code)
	}
	if errCtx := oopsErr.Context(); len(errCtx) > 0 {
		fields = append(fields, "context", errCtx)
	}
	logger.ErrorContext(ctx, msg, fields...)
}
