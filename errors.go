// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package swarm

import (
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is matched by errors reported for envelopes that
// cannot be decoded. Use errors.Is to check for it.
var ErrMalformedEnvelope = errors.New("malformed envelope")

var errMissingType = errors.New("missing type")

// MalformedEnvelopeError is the concrete type of errors reported by
// DecodeEnvelope.
type MalformedEnvelopeError struct {
	Err error // the underlying decoding failure
}

// Error satisfies the error interface.
func (m *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("malformed envelope: %v", m.Err)
}

// Unwrap reports the underlying error of m.
func (m *MalformedEnvelopeError) Unwrap() error { return m.Err }

// Is reports whether target is ErrMalformedEnvelope.
func (m *MalformedEnvelopeError) Is(target error) bool { return target == ErrMalformedEnvelope }
