// Package log provides the structured logger every component is
// constructed with, instead of a package-level global.
package log

import (
	"go.uber.org/zap"
)

// New builds a production zap logger, or a development one with friendlier
// console output when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Must is New but panics on error, for use at process start where there is
// no sensible fallback.
func Must(dev bool) *zap.Logger {
	logger, err := New(dev)
	if err != nil {
		panic(err)
	}
	return logger
}
