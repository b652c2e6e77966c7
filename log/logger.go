// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"os"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"
)

const timeFormat = "2006-01-02T15:04:05-0700"

// Logger is a leveled key/value logger.
type Logger interface {
	With(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
}

// logger resolves the root handler on every call, so SetDefault takes
// effect even for loggers created before it ran.
type logger struct {
	ctx []any
}

func (l *logger) With(ctx ...any) Logger {
	merged := make([]any, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &logger{merged}
}

func (l *logger) inner() *slog.Logger { return root.Load().With(l.ctx...) }

func (l *logger) Debug(msg string, ctx ...any) { l.inner().Debug(msg, normalize(ctx)...) }
func (l *logger) Info(msg string, ctx ...any)  { l.inner().Info(msg, normalize(ctx)...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.inner().Warn(msg, normalize(ctx)...) }
func (l *logger) Error(msg string, ctx ...any) { l.inner().Error(msg, normalize(ctx)...) }

// normalize renders values slog has no verbs for.
func normalize(ctx []any) []any {
	out := make([]any, len(ctx))
	for i, v := range ctx {
		switch v := v.(type) {
		case *big.Int:
			if v != nil {
				out[i] = v.String()
				continue
			}
		case *uint256.Int:
			if v != nil {
				out[i] = v.Dec()
				continue
			}
		case time.Time:
			out[i] = v.Format(timeFormat)
			continue
		}
		out[i] = v
	}
	return out
}

var root atomic.Pointer[slog.Logger]

func init() {
	root.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// SetDefault sets the handler used by the package-level and contextual loggers.
func SetDefault(h slog.Handler) {
	root.Store(slog.New(h))
}

// WithContext returns a logger carrying the given context pairs.
func WithContext(ctx ...any) Logger {
	return &logger{ctx}
}

// DiscardHandler returns a no-op handler.
func DiscardHandler() slog.Handler {
	return discardHandler{}
}

type discardHandler struct{}

func (discardHandler) Handle(_ context.Context, _ slog.Record) error { return nil }
func (discardHandler) Enabled(_ context.Context, _ slog.Level) bool  { return false }
func (discardHandler) WithGroup(_ string) slog.Handler               { return discardHandler{} }
func (discardHandler) WithAttrs(_ []slog.Attr) slog.Handler          { return discardHandler{} }

// JSONHandler returns a handler which prints records in JSON format.
func JSONHandler(wr io.Writer) slog.Handler {
	return slog.NewJSONHandler(wr, &slog.HandlerOptions{Level: slog.LevelDebug})
}

// Package-level convenience functions logging through the default handler.

func Debug(msg string, ctx ...any) { root.Load().Debug(msg, normalize(ctx)...) }
func Info(msg string, ctx ...any)  { root.Load().Info(msg, normalize(ctx)...) }
func Warn(msg string, ctx ...any)  { root.Load().Warn(msg, normalize(ctx)...) }
func Error(msg string, ctx ...any) { root.Load().Error(msg, normalize(ctx)...) }
