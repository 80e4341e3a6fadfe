package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/infrastructure/repository/memory"
)

func TestStatusService_Overview(t *testing.T) {
	f := newQueueFixture()
	status := NewStatusService(f.pickupRepo, f.communityRepo, nil)

	if _, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("alice"), []string{memory.ConfigIDTDM, memory.ConfigIDCTF}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	overview, err := status.Overview(t.Context(), memory.CommunityQuakeNet)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}
	if len(overview.Pickups) != 3 {
		t.Fatalf("expected 3 configured pickups, got %d", len(overview.Pickups))
	}

	// Sorted by config id: ctf, duel, tdm.
	if overview.Pickups[0].ConfigID != memory.ConfigIDCTF || overview.Pickups[2].ConfigID != memory.ConfigIDTDM {
		t.Fatalf("unexpected order: %+v", overview.Pickups)
	}
	if overview.Pickups[0].PlayerCount != 1 || overview.Pickups[2].PlayerCount != 1 {
		t.Fatalf("unexpected counts: %+v", overview.Pickups)
	}
	if overview.Pickups[1].PlayerCount != 0 || overview.Pickups[1].Stage != pickup.StageFilling {
		t.Fatalf("idle pickup must show as empty filling queue: %+v", overview.Pickups[1])
	}
	if overview.Unresolved != nil {
		t.Fatalf("no rateable pickup expected, got %+v", overview.Unresolved)
	}
}

func TestStatusService_Overview_SurfacesUnresolvedPickup(t *testing.T) {
	f := newOutcomeFixture()
	status := NewStatusService(f.pickupRepo, f.communityRepo, nil)
	id := f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	overview, err := status.Overview(t.Context(), memory.CommunityQuakeNet)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}
	if overview.Unresolved == nil || overview.Unresolved.PickupID != id {
		t.Fatalf("expected unresolved pickup %d, got %+v", id, overview.Unresolved)
	}

	// Rated pickups no longer surface.
	if err := f.outcomes.ReportOutcome(t.Context(), memory.CommunityQuakeNet, ref("a1"), 0, pickup.OutcomeLoss); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	overview, err = status.Overview(t.Context(), memory.CommunityQuakeNet)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}
	if overview.Unresolved != nil {
		t.Fatalf("rated pickup must not surface, got %+v", overview.Unresolved)
	}
}

func TestStatusService_Overview_ExpiredPickupHidden(t *testing.T) {
	f := newOutcomeFixture()
	status := NewStatusService(f.pickupRepo, f.communityRepo, nil)
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	status.now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	overview, err := status.Overview(t.Context(), memory.CommunityQuakeNet)
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}
	if overview.Unresolved != nil {
		t.Fatalf("expired pickup must not surface, got %+v", overview.Unresolved)
	}
}

func TestStatusService_Overview_UnknownCommunity(t *testing.T) {
	f := newQueueFixture()
	status := NewStatusService(f.pickupRepo, f.communityRepo, nil)

	_, err := status.Overview(t.Context(), "nowhere")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
