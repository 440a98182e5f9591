// Package logging wires a rotating file backend to the per-subsystem
// btclog.Logger handles that every vault-engine package declares in its
// own log.go, mirroring how the teacher daemon attaches a single
// logrotate-backed backend to each of its subsystems at startup.
package logging

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate"
)

// backend is the shared log backend; subsystems obtain a handle to it
// via Logger(subsystem).
var backend *btclog.Backend

// Init attaches a rotating log file at logPath in addition to stdout.
// Call it once at process start; packages that never call it keep
// logging to btclog.Disabled until a subsystem registers a logger.
func Init(logPath string) error {
	rotator, err := logrotate.NewRotator(logPath)
	if err != nil {
		return err
	}

	backend = btclog.NewBackend(logWriter{rotator})
	return nil
}

type logWriter struct {
	rotator *logrotate.Rotator
}

func (w logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	return w.rotator.Write(p)
}

// Logger returns a subsystem logger tagged with the given short name
// (e.g. "PSBT", "VLDT"), at Info level by default. If Init has not been
// called, logs are discarded.
func Logger(subsystem string) btclog.Logger {
	if backend == nil {
		return btclog.Disabled
	}
	l := backend.Logger(subsystem)
	l.SetLevel(btclog.LevelInfo)
	return l
}

// SetLevel adjusts the level of an already-created subsystem logger.
func SetLevel(l btclog.Logger, level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return
	}
	l.SetLevel(lvl)
}
