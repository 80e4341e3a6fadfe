package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/infrastructure/repository/memory"
)

type subFixture struct {
	*outcomeFixture
	subs *SubService
}

func newSubFixture() *subFixture {
	f := newOutcomeFixture()
	subs := NewSubService(f.pickupRepo, f.playerRepo, f.communityRepo, &stubRoles{}, nil, nil)
	return &subFixture{outcomeFixture: f, subs: subs}
}

func TestSubService_RequestAndAccept(t *testing.T) {
	f := newSubFixture()
	id := f.seedRateable(t, [][]string{{"a1", "a2"}, {"b1", "b2"}})

	if err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "a2"); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	req, ok, _ := f.playerRepo.GetSubRequest(t.Context(), memory.CommunityQuakeNet, "sub")
	if !ok || req.TargetID != "a2" {
		t.Fatalf("unexpected stored request: %+v ok=%v", req, ok)
	}

	if err := f.subs.AcceptSub(t.Context(), memory.CommunityQuakeNet, ref("a2"), "sub"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	rateable, ok, _ := f.pickupRepo.GetLatestRateable(t.Context(), memory.CommunityQuakeNet, "", id)
	if !ok {
		t.Fatal("rateable pickup vanished")
	}
	if rateable.HasPlayer("a2") {
		t.Fatal("subbed-out player still in teams")
	}
	if !rateable.HasPlayer("sub") {
		t.Fatal("substitute missing from teams")
	}
	if _, ok, _ := f.playerRepo.GetSubRequest(t.Context(), memory.CommunityQuakeNet, "sub"); ok {
		t.Fatal("accepted request must be cleared")
	}
}

func TestSubService_CancelRequest(t *testing.T) {
	f := newSubFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	if err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "a1"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), ""); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, ok, _ := f.playerRepo.GetSubRequest(t.Context(), memory.CommunityQuakeNet, "sub"); ok {
		t.Fatal("cancelled request must be cleared")
	}

	err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with nothing to cancel, got %v", err)
	}
}

func TestSubService_ParticipantCannotRequest(t *testing.T) {
	f := newSubFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("a1"), "b1")
	if !errors.Is(err, ErrEligibility) {
		t.Fatalf("expected ErrEligibility for participant, got %v", err)
	}
}

func TestSubService_TargetMustBeInPickup(t *testing.T) {
	f := newSubFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "stranger")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for outsider target, got %v", err)
	}
}

func TestSubService_DuplicateRequestRejected(t *testing.T) {
	f := newSubFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	if err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "a1"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "a1")
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for duplicate request, got %v", err)
	}

	// Retargeting replaces the standing request.
	if err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "b1"); err != nil {
		t.Fatalf("retarget failed: %v", err)
	}
	req, ok, _ := f.playerRepo.GetSubRequest(t.Context(), memory.CommunityQuakeNet, "sub")
	if !ok || req.TargetID != "b1" {
		t.Fatalf("unexpected request after retarget: %+v", req)
	}
}

func TestSubService_BannedRequesterRejected(t *testing.T) {
	f := newSubFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})
	f.playerRepo.SetBan(memory.CommunityQuakeNet, "sub", &player.Ban{Reason: "toxicity"})

	err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "a1")
	if !errors.Is(err, ErrEligibility) {
		t.Fatalf("expected ErrEligibility for banned requester, got %v", err)
	}
}

func TestSubService_AcceptRequiresMatchingRequest(t *testing.T) {
	f := newSubFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	if err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "a1"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	// b1 was not targeted.
	err := f.subs.AcceptSub(t.Context(), memory.CommunityQuakeNet, ref("b1"), "sub")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for untargeted acceptor, got %v", err)
	}
}

func TestSubService_NoRateablePickup(t *testing.T) {
	f := newSubFixture()

	err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "a1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a rateable pickup, got %v", err)
	}
}

func TestSubService_ExpiredPickupRefused(t *testing.T) {
	f := newSubFixture()
	f.seedRateable(t, [][]string{{"a1"}, {"b1"}})

	f.subs.now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "a1")
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for expired pickup, got %v", err)
	}
}

func TestSubService_RatedPickupRefused(t *testing.T) {
	f := newSubFixture()
	id := f.seedRateable(t, [][]string{{"a1"}, {"b1"}})
	if err := f.pickupRepo.SetRated(t.Context(), id); err != nil {
		t.Fatalf("set rated failed: %v", err)
	}

	err := f.subs.RequestSub(t.Context(), memory.CommunityQuakeNet, ref("sub"), "a1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for rated pickup, got %v", err)
	}
}
