// Package envinject renders credential environment variables as shell
// export statements and delivers them into a target's shell profile. The
// payload exists on disk only transiently: the local staging file is tracked
// for cleanup and removed right after delivery, and the remote transfer
// artifact is deleted in the same command that applies it.
package envinject

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/spinup/spinup/pkg/tempfiles"
)

// Marker is the comment line preceding injected exports, so later runs and
// humans can recognize the block.
const Marker = "# spinup injected environment"

// Pair is one KEY=VALUE environment entry. Order is preserved through
// rendering.
type Pair struct {
	Key   string
	Value string
}

// Target is where the payload lands. An SSH client satisfies this; container
// and local providers supply their own.
type Target interface {
	// Upload copies a local file to the target.
	Upload(ctx context.Context, localPath, remotePath string) error

	// Run executes a shell command on the target.
	Run(ctx context.Context, cmd string) error
}

// Render produces the export block: the marker comment followed by one
// single-quoted export per pair. Embedded single quotes are escaped by
// closing the quote, emitting \', and reopening, so arbitrary values
// survive a shell source.
func Render(pairs []Pair) []byte {
	var b strings.Builder
	b.WriteString(Marker)
	b.WriteByte('\n')
	for _, p := range pairs {
		b.WriteString("export ")
		b.WriteString(p.Key)
		b.WriteString("='")
		b.WriteString(strings.ReplaceAll(p.Value, "'", `'\''`))
		b.WriteString("'\n")
	}
	return []byte(b.String())
}

// Inject delivers the pairs into the target's shell profile: stage a
// mode-600 temp file locally, upload it, then append it to the profile and
// delete the transfer artifact in one remote command. The local file is
// removed immediately after delivery and is additionally tracked in the
// registry so an interrupt mid-transfer still scrubs it.
func Inject(ctx context.Context, t Target, reg *tempfiles.Registry, pairs []Pair, profilePath string) error {
	if len(pairs) == 0 {
		return nil
	}

	local := filepath.Join(os.TempDir(), fmt.Sprintf("spinup-env-%s", uuid.NewString()))
	if err := os.WriteFile(local, Render(pairs), 0o600); err != nil {
		return fmt.Errorf("failed to stage environment payload: %w", err)
	}
	if reg != nil {
		reg.Track(local)
	}
	defer func() {
		if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", local).Msg("failed to remove staged payload")
		}
		if reg != nil {
			reg.Untrack(local)
		}
	}()

	remote := fmt.Sprintf("/tmp/spinup-env-%s", uuid.NewString())
	if err := t.Upload(ctx, local, remote); err != nil {
		return fmt.Errorf("failed to upload environment payload: %w", err)
	}

	apply := fmt.Sprintf("cat %s >> %s && rm -f %s", remote, profilePath, remote)
	if err := t.Run(ctx, apply); err != nil {
		return fmt.Errorf("failed to apply environment payload: %w", err)
	}

	log.Debug().Int("vars", len(pairs)).Str("profile", profilePath).Msg("environment injected")
	return nil
}

// InjectLocal appends the rendered block directly to a local profile, for
// providers whose target is the local machine or a container rather than an
// SSH host.
func InjectLocal(pairs []Pair, profilePath string) error {
	if len(pairs) == 0 {
		return nil
	}

	f, err := os.OpenFile(profilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open profile: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(Render(pairs)); err != nil {
		return fmt.Errorf("failed to append to profile: %w", err)
	}
	return nil
}
