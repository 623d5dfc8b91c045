// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tomtom215/cadenza/internal/event"
)

// permanentSQLState reports whether a SQLSTATE code names a failure that
// will fail identically on every retry.
//
//	22 - data exception
//	23 - integrity constraint violation
//	42 - syntax error or access rule violation
func permanentSQLState(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "22", "23", "42":
		return true
	}
	return false
}

// classify wraps a database error for the retry loop: permanent SQL
// failures abort immediately, everything else (connectivity, timeouts,
// serialization conflicts) is treated as transient and retried.
func classify(message string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && permanentSQLState(pgErr.Code) {
		return event.NewPermanentError(message, err)
	}
	return event.NewRetryableError(message, err)
}
