package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// Error kinds. Concrete errors wrap one of these so callers can branch with errors.Is.
var (
	// ErrConfiguration is fatal at construction: bad or missing settings,
	// missing credentials, unusable storage paths.
	ErrConfiguration = errors.New("configuration error")
	// ErrInput marks malformed caller input such as mismatched batch lengths.
	ErrInput = errors.New("input error")
	// ErrBackend marks a failed remote call or local inference failure.
	ErrBackend = errors.New("backend error")
)

var (
	// ErrMissingCredential is returned when a remote backend is requested
	// without the API key being present in the environment.
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrConfiguration)
	// ErrRateLimit is returned when the upstream API reports HTTP 429.
	ErrRateLimit = fmt.Errorf("%w: upstream rate limit exceeded", ErrBackend)
	// ErrMalformedResponse is returned when a remote API answers with a body
	// that cannot be interpreted.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrBackend)
	// ErrRubricUnavailable is returned by rubric evaluation when no generation
	// backend is configured.
	ErrRubricUnavailable = errors.New("rubric evaluation unavailable: no generation backend")
)

var collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{1,61}[A-Za-z0-9]$`)

// ValidateCollectionName rejects names that no backend can store.
// Names are 3-63 characters of letters, digits, '.', '_' or '-', starting and
// ending with a letter or digit.
func ValidateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) {
		return fmt.Errorf("%w: invalid collection name %q", ErrConfiguration, name)
	}
	return nil
}

// ParseDistance maps a configured metric name to a Distance. Empty means cosine.
func ParseDistance(s string) (Distance, error) {
	switch s {
	case "", "cosine":
		return DistanceCosine, nil
	case "l2", "euclidean":
		return DistanceL2, nil
	default:
		return "", fmt.Errorf("%w: unknown distance %q", ErrConfiguration, s)
	}
}
