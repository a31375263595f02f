package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// Probe is a provider-supplied check that exercises the credential against
// the provider's API. A nil Probe means the provider needs no authentication.
type Probe func(ctx context.Context) error

// Validate confirms the credential against the provider.
//
// With a nil probe the credential is Validated unconditionally (no-auth
// providers). When the probe fails, every constituent environment variable
// is unset before returning, so a partially present or known-bad credential
// can never leak into later commands in the same session. The returned
// error carries provider-specific guidance.
func Validate(ctx context.Context, cred *Credential, probe Probe) error {
	if probe == nil {
		cred.State = StateValidated
		return nil
	}

	if err := probe(ctx); err != nil {
		for _, name := range cred.Names {
			if unsetErr := os.Unsetenv(name); unsetErr != nil {
				log.Warn().Err(unsetErr).Str("var", name).Msg("failed to unset rejected credential var")
			}
		}
		cred.values = nil
		cred.State = StateInvalid

		log.Warn().
			Str("provider", cred.Provider).
			Strs("vars", cred.Names).
			Msg("credential rejected by provider, constituent vars unset")
		return fmt.Errorf("%s rejected the supplied credential (%s): %w",
			cred.Provider, authLabel(cred), err)
	}

	cred.State = StateValidated
	return nil
}

func authLabel(cred *Credential) string {
	if len(cred.Names) == 0 {
		return "no credential"
	}
	label := cred.Names[0]
	for _, n := range cred.Names[1:] {
		label += " + " + n
	}
	return label
}
