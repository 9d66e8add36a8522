package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

// maxLogRollKB and maxLogRolls bound the node's own log file; grounded on
// the btcsuite-family convention jrick/logrotate was written for (rotate at
// a fixed size, keep a handful of backups); backups are left uncompressed.
const (
	maxLogRollKB = 10 * 1024
	maxLogRolls  = 3
)

// initLogRotation points the standard logger at both stderr and a rotating
// file under dataDir/logs, returning a closer the caller should defer.
func initLogRotation(dataDir string) (io.Closer, error) {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir log dir: %w", err)
	}
	r, err := rotator.New(filepath.Join(logDir, "node.log"), maxLogRollKB, false, maxLogRolls)
	if err != nil {
		return nil, fmt.Errorf("init log rotator: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, r))
	return r, nil
}
