package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classifying service failures. Pipeline retry policy keys
// off these: preflight and password failures are deterministic and never
// retried, everything else is assumed transient.
var (
	// ErrPreflight marks deterministic pre-transfer failures such as a
	// mirror responding 404 for every candidate URL.
	ErrPreflight = errors.New("preflight failure")
	// ErrStalled marks a transfer that stopped making progress past the
	// stall window and could not be nudged back to life.
	ErrStalled = errors.New("transfer stalled")
	// ErrDaemon marks failures of the download daemon itself: unreachable
	// RPC endpoint, malformed responses, rejected methods.
	ErrDaemon = errors.New("download daemon failure")
	// ErrIntegrity marks post-transfer verification failures such as a
	// size mismatch between the remote object and the local file.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrPassword marks archives that cannot be opened because they are
	// encrypted with an unknown password.
	ErrPassword = errors.New("archive password required")
	// ErrExternalTool marks failures reported by an external binary.
	ErrExternalTool = errors.New("external tool failure")
	// ErrConfiguration marks invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrAPI marks failures talking to the catalog API.
	ErrAPI = errors.New("catalog api failure")
)

// Wrap tags err with a sentinel marker plus component and operation context.
// A nil marker defaults to ErrExternalTool.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrExternalTool
	}
	detail := buildDetail(component, operation, message)
	if err == nil {
		return fmt.Errorf("%w: %s", marker, detail)
	}
	return fmt.Errorf("%w: %s: %w", marker, detail, err)
}

func buildDetail(parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ": ")
}

// IsPreflight reports whether err carries the preflight marker.
func IsPreflight(err error) bool {
	return errors.Is(err, ErrPreflight)
}

// IsPassword reports whether err carries the password marker.
func IsPassword(err error) bool {
	return errors.Is(err, ErrPassword)
}

// IsRetryable reports whether a failed operation is worth retrying.
// Deterministic failures (preflight, password) are not.
func IsRetryable(err error) bool {
	return err != nil && !IsPreflight(err) && !IsPassword(err)
}
