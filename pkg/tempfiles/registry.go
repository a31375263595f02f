// Package tempfiles tracks ephemeral files holding secret material and
// guarantees their removal on every exit path, including SIGINT/SIGTERM.
package tempfiles

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"
)

// Registry owns the set of temp files created during a run. Create one at
// process start, pass it explicitly to the components that write temp files,
// and defer Cleanup; InstallTrap additionally covers interruption signals.
type Registry struct {
	mu       sync.Mutex
	paths    []string
	trapOnce sync.Once
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Track records a path for removal at cleanup time. Tracking the same path
// twice is harmless.
func (r *Registry) Track(path string) {
	if path == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.paths {
		if p == path {
			return
		}
	}
	r.paths = append(r.paths, path)
	log.Debug().Str("path", path).Msg("tracking temp file")
}

// Tracked returns the currently tracked paths.
func (r *Registry) Tracked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// Cleanup removes every tracked file that still exists. It is idempotent:
// repeat calls and already-deleted files are not errors. Removal failures
// are logged and never escalated; secret scrubbing is best-effort by the
// time the process is exiting.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	paths := r.paths
	r.paths = nil
	r.mu.Unlock()

	for _, path := range paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			log.Debug().Str("path", path).Msg("removed temp file")
		case os.IsNotExist(err):
			// Already gone, nothing to scrub.
		default:
			log.Warn().Err(err).Str("path", path).Msg("failed to remove temp file")
		}
	}
}

// Untrack removes a path from the registry without deleting the file, for
// callers that have already disposed of it themselves.
func (r *Registry) Untrack(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.paths {
		if p == path {
			r.paths = append(r.paths[:i], r.paths[i+1:]...)
			return
		}
	}
}

// InstallTrap registers Cleanup to run when one of the given signals arrives
// (SIGINT and SIGTERM when none are specified). The trap is installed once
// per registry regardless of how many times this is called; normal-exit
// cleanup remains the caller's responsibility via defer Cleanup. The handler
// invokes done after cleanup so the caller controls the final exit code.
func (r *Registry) InstallTrap(done func(sig os.Signal), sigs ...os.Signal) {
	r.trapOnce.Do(func() {
		if len(sigs) == 0 {
			sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
		}
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, sigs...)
		go func() {
			sig := <-ch
			log.Info().Str("signal", sig.String()).Msg("interrupted, scrubbing temp files")
			r.Cleanup()
			if done != nil {
				done(sig)
			}
		}()
	})
}
