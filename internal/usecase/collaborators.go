package usecase

import "context"

// Severity classifies notification messages for the chat surface.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

// Notifier delivers fire-and-forget messages to an actor or channel. The core
// never blocks on delivery and never treats a delivery failure as its own
// error; implementations log what they cannot deliver, except
// insufficient-permission failures which are swallowed outright.
type Notifier interface {
	Notify(ctx context.Context, community, target, message string, severity Severity)
}

// NopNotifier drops everything. Used in tests and as a safe default.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, string, Severity) {}

// RoleResolver answers allow/deny-list role checks. The core treats it as an
// opaque predicate owned by the chat platform.
type RoleResolver interface {
	MemberHasRole(ctx context.Context, community, actorID, roleID string) (bool, error)
}
