package player

import (
	"fmt"
	"time"
)

// Ref identifies a player within a community. The ID is opaque to the core;
// it is whatever stable identifier the chat platform hands us.
type Ref struct {
	ID          string
	DisplayName string
}

func (r Ref) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("player id is required")
	}
	return nil
}

// Ban describes an active ban. A nil ExpiresAt means permanent.
type Ban struct {
	Reason    string
	ExpiresAt *time.Time
}

func (b Ban) Active(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// SubRequest is a pending request to replace a player in a running match.
type SubRequest struct {
	RequesterID string
	TargetID    string
	CreatedAt   time.Time
}
