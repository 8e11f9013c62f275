// Package logger provides structured logging for the gw-session SDK.
//
// It wraps a single global zerolog.Logger and hands out component-scoped
// child loggers, the same shape the teacher's internal/logger package uses,
// so every core component (token codec, verifier, timer, heartbeat, tab
// sync, controller) tags its lines with a "component" field instead of
// inventing its own logging convention.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the process-wide base logger. Initialize should be called once by
// the host before constructing a session.Controller; if it is never called,
// Log stays zerolog's zero-value Logger, which has no writer and so
// discards every line (useful in tests).
var Log zerolog.Logger

// Initialize configures the global logger.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().Str("service", "gw-session-sdk").Logger()
	Log.Info().Str("level", logLevel.String()).Bool("pretty", pretty).Msg("logger initialized")
}

func component(name string) *zerolog.Logger {
	l := Log.With().Str("component", name).Logger()
	return &l
}

// Component returns a component-scoped logger for name, for callers outside
// this package that need one not already named below (e.g. cmd/teststub).
func Component(name string) *zerolog.Logger { return component(name) }

// Token returns the token codec's component logger.
func Token() *zerolog.Logger { return component("tokencodec") }

// Verifier returns the signature verifier's component logger.
func Verifier() *zerolog.Logger { return component("verifier") }

// Timer returns the countdown timer's component logger.
func Timer() *zerolog.Logger { return component("timer") }

// Heartbeat returns the heartbeat loop's component logger.
func Heartbeat() *zerolog.Logger { return component("heartbeat") }

// TabSync returns the tab sync bus's component logger.
func TabSync() *zerolog.Logger { return component("tabsync") }

// Session returns the session controller's component logger.
func Session() *zerolog.Logger { return component("session") }

// Audit returns the audit sink's component logger.
func Audit() *zerolog.Logger { return component("audit") }

// Relay returns the standalone tab-relay server's component logger.
func Relay() *zerolog.Logger { return component("tabrelay") }
