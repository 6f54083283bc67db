// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package hub

import (
	"errors"
	"fmt"
)

// ErrStaleClient is matched by errors reported when a reply is addressed only
// to peers that are no longer present.
var ErrStaleClient = errors.New("stale client")

// StaleClientError is the concrete type of errors reported for a reply whose
// recipients are all absent.
type StaleClientError struct {
	Type       string   // the type of the undeliverable envelope
	Recipients []string // the original recipients
}

// Error satisfies the error interface.
func (s *StaleClientError) Error() string {
	return fmt.Sprintf("stale client: %s for %q", s.Type, s.Recipients)
}

// Is reports whether target is ErrStaleClient.
func (s *StaleClientError) Is(target error) bool { return target == ErrStaleClient }
