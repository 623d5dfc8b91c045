// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package bus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cadenza/internal/logging"
)

// zerologAdapter implements watermill.LoggerAdapter on top of the global
// zerolog logger, so Watermill internals log through the same sink as the
// rest of the worker.
type zerologAdapter struct {
	logger zerolog.Logger
}

// NewLoggerAdapter returns a Watermill logger backed by the global zerolog
// logger with a component field.
func NewLoggerAdapter() watermill.LoggerAdapter {
	return &zerologAdapter{
		logger: logging.With().Str("component", "bus").Logger(),
	}
}

func (a *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	addFields(a.logger.Error().Err(err), fields).Msg(msg)
}

func (a *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	addFields(a.logger.Info(), fields).Msg(msg)
}

func (a *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	addFields(a.logger.Debug(), fields).Msg(msg)
}

func (a *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	addFields(a.logger.Trace(), fields).Msg(msg)
}

func (a *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologAdapter{logger: ctx.Logger()}
}

func addFields(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}
