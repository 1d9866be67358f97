package gcrf

import (
	"log"
	"sync"
)

var (
	logMu  sync.RWMutex
	logger = log.Printf
)

// Logf writes through the package logger, log.Printf unless SetLogger
// replaced it.
func Logf(format string, v ...any) {
	logMu.RLock()
	f := logger
	logMu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the package logger. Passing nil mutes it. It may be
// called while Losses are being built on other goroutines.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		f = func(string, ...any) {}
	}
	logMu.Lock()
	logger = f
	logMu.Unlock()
}
