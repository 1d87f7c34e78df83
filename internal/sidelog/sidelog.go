// Package sidelog writes the append-only side-channel records for
// user-visible anomalies: rename collisions and literal matches
// inside binary files.
package sidelog

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Default side-log file names, created in the scan root.
const (
	CollisionLogName = "replx_collisions.log"
	BinaryLogName    = "replx_binary_matches.log"
)

// BinaryHit is one literal occurrence inside a binary file.
type BinaryHit struct {
	Offset  int64
	Literal string
}

// Logger appends records to the collision and binary-match logs.
// Files are opened lazily so runs without anomalies leave no logs
// behind.
type Logger struct {
	collisionPath string
	binaryPath    string

	mu        sync.Mutex
	collision *os.File
	binary    *os.File
}

// New returns a logger writing to the given paths.
func New(collisionPath, binaryPath string) *Logger {
	return &Logger{collisionPath: collisionPath, binaryPath: binaryPath}
}

// Collision records a rename whose destination is already taken.
func (l *Logger) Collision(txType, from, to string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.open(&l.collision, l.collisionPath)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s\t%s\t%s -> %s\n", timestamp(), txType, from, to)
	if err != nil {
		return err
	}
	return f.Sync()
}

// Binary records literal rule occurrences found in a binary file.
func (l *Logger) Binary(path string, hits []BinaryHit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.open(&l.binary, l.binaryPath)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s\t%s\n", timestamp(), path); err != nil {
		return err
	}
	for _, h := range hits {
		if _, err := fmt.Fprintf(f, "\toffset %d\t%q\n", h.Offset, h.Literal); err != nil {
			return err
		}
	}
	return f.Sync()
}

// CollisionPath returns the collision log path.
func (l *Logger) CollisionPath() string { return l.collisionPath }

// BinaryPath returns the binary-match log path.
func (l *Logger) BinaryPath() string { return l.binaryPath }

// Close closes any open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var first error
	for _, f := range []*os.File{l.collision, l.binary} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.collision, l.binary = nil, nil
	return first
}

func (l *Logger) open(slot **os.File, path string) (*os.File, error) {
	if *slot != nil {
		return *slot, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	*slot = f
	return f, nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
