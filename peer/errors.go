// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package peer

import (
	"errors"
	"fmt"
)

// ErrInvalidCommand is matched by errors reported for commands that cannot be
// interpreted. Use errors.Is to check for it.
var ErrInvalidCommand = errors.New("invalid command")

// CommandError is the concrete type of errors reported by the Command method
// of a Client. These errors are never sent to the hub.
type CommandError struct {
	Command string // the command verb
	Message string
}

// Error satisfies the error interface.
func (c *CommandError) Error() string { return fmt.Sprintf("%s: %s", c.Command, c.Message) }

// Is reports whether target is ErrInvalidCommand.
func (c *CommandError) Is(target error) bool { return target == ErrInvalidCommand }
