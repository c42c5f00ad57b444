// Package errtrack reports failures to Sentry. With an empty DSN every call
// is a no-op.
package errtrack

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// Init configures the Sentry client. A failed init is logged, never fatal.
func Init(dsn, environment, release string) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		TracesSampleRate: 0.2,
		EnableTracing:    dsn != "",
	})
	if err != nil {
		log.Warn().Err(err).Msg("sentry init failed")
		return
	}
	if dsn == "" {
		log.Info().Msg("SENTRY_DSN empty, error tracking disabled")
	}
}

func Flush() { sentry.Flush(2 * time.Second) }

// CaptureError sends err with the given tags.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
