// Package workspace manages the scratch directories the Compile and Verify
// commands materialize source files into before invoking a subprocess.
package workspace

import (
	"log/slog"
	"os"
)

// CleanUp is a scoped guard over one or more directories: call Release once
// cleanup has already happened explicitly (success path), or let Close run
// via defer to remove them (failure / early-return path). Go has no
// destructor, so unlike the source's Drop-based AutoCleanUp, the caller
// must defer Close() itself.
type CleanUp struct {
	dirs     []string
	log      *slog.Logger
	released bool
}

// NewCleanUp returns a guard over dirs.
func NewCleanUp(log *slog.Logger, dirs ...string) *CleanUp {
	if log == nil {
		log = slog.Default()
	}
	return &CleanUp{dirs: dirs, log: log}
}

// Release marks cleanup as already performed, so a deferred Close is a
// no-op. Call this right after an explicit, successful CleanUp.Close().
func (c *CleanUp) Release() { c.released = true }

// Close removes every tracked directory, unless Release was already
// called. Errors are logged, not returned — a failed best-effort cleanup
// must not fail the caller's operation.
func (c *CleanUp) Close() {
	if c.released {
		return
	}
	c.released = true
	for _, dir := range c.dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			c.log.Info("failed to remove workspace directory", slog.String("dir", dir), slog.Any("err", err))
		}
	}
}
