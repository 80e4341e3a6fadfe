package usecase

import (
	"context"
	"time"

	"github.com/pickuphub/pickup-backend/internal/platform/cache"
	"github.com/pickuphub/pickup-backend/internal/platform/logging"
)

// GuardLimits tunes the flood and cooldown guards.
type GuardLimits struct {
	// FloodDelay is the window within which consecutive requests count towards
	// the flood limit.
	FloodDelay time.Duration
	// FloodMaxCommands is the number of counted requests that triggers a
	// timeout.
	FloodMaxCommands int
	// FloodTimeout is how long a flooding actor stays timed out. It also
	// resets the counter after a quiet period.
	FloodTimeout time.Duration
}

// FloodDecision is the outcome of a flood check. JustTimedOut is true only on
// the request that trips the limit; later denied requests stay silent so a
// flooding actor cannot farm responses.
type FloodDecision struct {
	Allowed      bool
	JustTimedOut bool
	Timeout      time.Duration
}

type floodState struct {
	count int
	at    time.Time
}

// GuardService rate-limits actors before any queue or report operation runs.
// State lives in the in-process cache; a restart forgives standing timeouts.
type GuardService struct {
	limits    GuardLimits
	floods    *cache.Store
	cooldowns *cache.Store
	logger    *logging.Logger
	now       func() time.Time
}

func NewGuardService(limits GuardLimits, logger *logging.Logger) *GuardService {
	if limits.FloodMaxCommands <= 0 {
		limits.FloodMaxCommands = 4
	}
	if limits.FloodDelay <= 0 {
		limits.FloodDelay = 2 * time.Second
	}
	if limits.FloodTimeout <= 0 {
		limits.FloodTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GuardService{
		limits: limits,
		// Flood entries expiring is the counter reset after a quiet period.
		floods:    cache.NewStore(limits.FloodTimeout),
		cooldowns: cache.NewStore(0),
		logger:    logger,
		now:       time.Now,
	}
}

// CheckFlood counts the request against the actor's window and decides
// whether it may proceed.
func (g *GuardService) CheckFlood(ctx context.Context, community, actorID string) FloodDecision {
	key := "flood/" + community + "/" + actorID
	now := g.now()

	raw, ok := g.floods.Get(ctx, key)
	if !ok {
		g.floods.Set(ctx, key, floodState{count: 1, at: now})
		return FloodDecision{Allowed: true}
	}
	state := raw.(floodState)

	// Already timed out. No refresh, the standing entry runs out on its own.
	if state.count >= g.limits.FloodMaxCommands {
		return FloodDecision{Allowed: false, Timeout: g.limits.FloodTimeout}
	}

	if state.at.Add(g.limits.FloodDelay).After(now) {
		state.count++
	}
	state.at = now
	g.floods.Set(ctx, key, state)

	if state.count < g.limits.FloodMaxCommands {
		return FloodDecision{Allowed: true}
	}

	g.logger.WarnContext(ctx, "actor timed out for flooding",
		"community", community, "actor", actorID, "timeout", g.limits.FloodTimeout)
	return FloodDecision{Allowed: false, JustTimedOut: true, Timeout: g.limits.FloodTimeout}
}

// CheckCooldown enforces a shared per-community cooldown on one operation.
// It returns the remaining wait when the operation was used too recently, or
// zero when it may run now. A zero cooldown always passes.
func (g *GuardService) CheckCooldown(ctx context.Context, community, operation string, cooldown time.Duration) time.Duration {
	if cooldown <= 0 {
		return 0
	}
	key := "cooldown/" + community + "/" + operation
	now := g.now()

	if raw, ok := g.cooldowns.Get(ctx, key); ok {
		last := raw.(time.Time)
		if readyAt := last.Add(cooldown); readyAt.After(now) {
			return readyAt.Sub(now)
		}
	}
	g.cooldowns.Set(ctx, key, now)
	return 0
}
