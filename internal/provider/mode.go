// Package provider holds the backend mode enumeration shared by the embedding
// and generation factories, and the policy that resolves "auto".
package provider

import (
	"fmt"
	"os"
	"strings"

	"insight/internal/domain"
)

// Mode selects between an on-process implementation and a hosted API.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ParseMode accepts the canonical names plus the provider aliases used in
// older configs ("openai" for remote, "hf"/"tfidf" for local). Empty is auto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "local", "hf", "tfidf", "on-process":
		return ModeLocal, nil
	case "remote", "openai":
		return ModeRemote, nil
	default:
		return "", fmt.Errorf("%w: unknown backend mode %q", domain.ErrConfiguration, s)
	}
}

// Resolve turns the requested generation mode into a concrete one.
//
// An explicit request always wins, even when it cannot be satisfied; the
// constructor then fails instead of silently picking something else. Auto
// defers to the configured mode, and when that is auto as well the credential
// decides: remote if present, local otherwise.
func Resolve(requested, configured Mode, credentialPresent bool) Mode {
	if requested == ModeLocal || requested == ModeRemote {
		return requested
	}
	if configured == ModeLocal || configured == ModeRemote {
		return configured
	}
	if credentialPresent {
		return ModeRemote
	}
	return ModeLocal
}

// ResolveEmbeddings turns the requested embedding mode into a concrete one.
// Explicit requests and configured modes win as in Resolve, but an auto/auto
// pair stays local whatever the credential.
func ResolveEmbeddings(requested, configured Mode) Mode {
	if requested == ModeLocal || requested == ModeRemote {
		return requested
	}
	if configured == ModeRemote {
		return ModeRemote
	}
	return ModeLocal
}

// Credential reads the API key from the named environment variable.
func Credential(envName string) (string, bool) {
	if envName == "" {
		return "", false
	}
	key := strings.TrimSpace(os.Getenv(envName))
	return key, key != ""
}
