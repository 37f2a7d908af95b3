package core

import "github.com/google/uuid"

// NewID returns a random identifier used for sessions and conversations.
func NewID() string { return uuid.NewString() }
