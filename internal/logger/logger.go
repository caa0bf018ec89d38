// Package logger writes to the standard logger and, when a Rollbar token is
// configured, forwards errors so that store outages and dropped feeds are
// visible somewhere other than a terminal.
package logger

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/rollbar/rollbar-go"
)

var reporting atomic.Bool

// Init enables Rollbar reporting when token is non-empty
func Init(token, env, codeVersion string) {
	if token == "" {
		rollbar.SetEnabled(false)
		reporting.Store(false)
		return
	}

	rollbar.SetToken(token)
	rollbar.SetEnvironment(env)
	rollbar.SetCodeVersion(codeVersion)
	rollbar.SetEnabled(true)
	reporting.Store(true)
	log.Printf("Error reporting enabled (env: %s)", env)
}

// Flush waits for queued reports to be sent
func Flush() {
	if reporting.Load() {
		rollbar.Wait()
	}
}

// Printf logs an informational line
func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// Warn logs a recoverable problem and reports it as a warning
func Warn(msg string, err error, extras ...map[string]interface{}) {
	log.Printf("Warning: %s: %v", msg, err)
	if reporting.Load() {
		rollbar.Warning(report(msg, err, extras)...)
	}
}

// Error logs a failure and reports it
func Error(msg string, err error, extras ...map[string]interface{}) {
	log.Printf("Error: %s: %v", msg, err)
	if reporting.Load() {
		rollbar.Error(report(msg, err, extras)...)
	}
}

func report(msg string, err error, extras []map[string]interface{}) []interface{} {
	args := []interface{}{fmt.Errorf("%s: %w", msg, err)}
	if len(extras) > 0 && extras[0] != nil {
		args = append(args, extras[0])
	}
	return args
}
