package community

import (
	"context"
	"fmt"
	"time"
)

// Settings holds the per-community knobs the pickup lifecycle depends on.
// Frequently read, rarely written; the core treats a loaded value as a
// snapshot for the duration of one operation.
type Settings struct {
	ID               string
	AllowlistRole    string
	DenylistRole     string
	ExplicitTrust    bool
	TrustTime        time.Duration
	ReportExpireTime time.Duration
}

func (s Settings) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("community id is required")
	}
	if s.ReportExpireTime <= 0 {
		return fmt.Errorf("report expire time must be positive")
	}
	return nil
}

// Repository describes community settings persistence needs from use cases.
type Repository interface {
	GetSettings(ctx context.Context, community string) (Settings, bool, error)
}
