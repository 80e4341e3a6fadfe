package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pickuphub/pickup-backend/internal/domain/community"
	"github.com/pickuphub/pickup-backend/internal/domain/pickup"
	"github.com/pickuphub/pickup-backend/internal/domain/player"
	"github.com/pickuphub/pickup-backend/internal/infrastructure/repository/memory"
)

type stubRoles struct {
	mu    sync.Mutex
	roles map[string]bool // actorID/roleID
	err   error
}

func (s *stubRoles) MemberHasRole(_ context.Context, _, actorID, roleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.roles[actorID+"/"+roleID], nil
}

type queueFixture struct {
	pickupRepo    *memory.PickupRepository
	playerRepo    *memory.PlayerRepository
	communityRepo *memory.CommunityRepository
	roles         *stubRoles
	stages        *StageService
	queue         *QueueService
}

func newQueueFixture() *queueFixture {
	pickupRepo := memory.NewPickupRepository(memory.SeedConfigs())
	playerRepo := memory.NewPlayerRepository()
	communityRepo := memory.NewCommunityRepository(memory.SeedCommunities())
	roles := &stubRoles{roles: make(map[string]bool)}

	stages := NewStageService(pickupRepo, playerRepo, nil, nil)
	queue := NewQueueService(pickupRepo, playerRepo, communityRepo, roles, stages, nil, nil)

	return &queueFixture{
		pickupRepo:    pickupRepo,
		playerRepo:    playerRepo,
		communityRepo: communityRepo,
		roles:         roles,
		stages:        stages,
		queue:         queue,
	}
}

func ref(id string) player.Ref {
	return player.Ref{ID: id, DisplayName: id}
}

func TestQueueService_AddPlayers_Joins(t *testing.T) {
	f := newQueueFixture()

	result, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("alice"), []string{memory.ConfigIDTDM})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if len(result.Joined) != 1 || result.Joined[0] != memory.ConfigIDTDM {
		t.Fatalf("unexpected joined set: %v", result.Joined)
	}

	active, ok, err := f.pickupRepo.GetActive(t.Context(), memory.CommunityQuakeNet, memory.ConfigIDTDM)
	if err != nil || !ok {
		t.Fatalf("expected active pickup, ok=%v err=%v", ok, err)
	}
	if len(active.Players) != 1 || active.Stage != pickup.StageFilling {
		t.Fatalf("unexpected active state: %+v", active)
	}
}

func TestQueueService_AddPlayers_DuplicateRejected(t *testing.T) {
	f := newQueueFixture()

	if _, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("alice"), []string{memory.ConfigIDTDM}); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	result, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("alice"), []string{memory.ConfigIDTDM})
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if len(result.Joined) != 0 || len(result.Rejected) != 1 {
		t.Fatalf("expected a single rejection, got %+v", result)
	}
	if result.Rejected[0].Reason != "already added" {
		t.Fatalf("unexpected reason: %s", result.Rejected[0].Reason)
	}
}

func TestQueueService_AddPlayers_FillAdvancesToAwaitingOutcome(t *testing.T) {
	f := newQueueFixture()

	for i := 0; i < 8; i++ {
		if _, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref(fmt.Sprintf("p%d", i)), []string{memory.ConfigIDTDM}); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}

	active, ok, err := f.pickupRepo.GetActive(t.Context(), memory.CommunityQuakeNet, memory.ConfigIDTDM)
	if err != nil || !ok {
		t.Fatalf("expected active pickup, ok=%v err=%v", ok, err)
	}
	if active.Stage != pickup.StageAwaitingOutcome {
		t.Fatalf("expected awaiting_outcome, got %s", active.Stage)
	}
	if len(active.Teams) != 2 || len(active.Teams[0].Players) != 4 || len(active.Teams[1].Players) != 4 {
		t.Fatalf("unexpected team shape: %+v", active.Teams)
	}
	if len(active.Captains) != 2 {
		t.Fatalf("expected two captains, got %d", len(active.Captains))
	}

	rateable, ok, err := f.pickupRepo.GetLatestRateable(t.Context(), memory.CommunityQuakeNet, "", 0)
	if err != nil || !ok {
		t.Fatalf("expected stored rateable pickup, ok=%v err=%v", ok, err)
	}
	if rateable.IsRated {
		t.Fatal("fresh pickup must not be rated")
	}
}

func TestQueueService_AddPlayers_UnratedConfigStoresNoRateable(t *testing.T) {
	f := newQueueFixture()

	for i := 0; i < 8; i++ {
		if _, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref(fmt.Sprintf("p%d", i)), []string{memory.ConfigIDCTF}); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}

	if _, ok, _ := f.pickupRepo.GetLatestRateable(t.Context(), memory.CommunityQuakeNet, "", 0); ok {
		t.Fatal("unrated config must not produce a rateable pickup")
	}
}

func TestQueueService_AddPlayers_CapacityUnderContention(t *testing.T) {
	f := newQueueFixture()

	const attempts = 20
	var wg sync.WaitGroup
	joined := make(chan string, attempts)

	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.queue.AddPlayers(context.Background(), memory.CommunityQuakeNet, ref(fmt.Sprintf("p%d", i)), []string{memory.ConfigIDTDM})
			if err != nil {
				t.Errorf("add %d failed: %v", i, err)
				return
			}
			for range result.Joined {
				joined <- fmt.Sprintf("p%d", i)
			}
		}()
	}
	wg.Wait()
	close(joined)

	count := 0
	for range joined {
		count++
	}
	if count != 8 {
		t.Fatalf("expected exactly 8 joins, got %d", count)
	}
}

func TestQueueService_AddPlayers_BannedActor(t *testing.T) {
	f := newQueueFixture()
	f.playerRepo.SetBan(memory.CommunityQuakeNet, "alice", &player.Ban{Reason: "smurfing"})

	_, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("alice"), []string{memory.ConfigIDTDM})
	if !errors.Is(err, ErrEligibility) {
		t.Fatalf("expected ErrEligibility, got %v", err)
	}
}

func TestQueueService_AddPlayers_ExpiredBanIgnored(t *testing.T) {
	f := newQueueFixture()
	past := time.Now().Add(-time.Hour)
	f.playerRepo.SetBan(memory.CommunityQuakeNet, "alice", &player.Ban{Reason: "smurfing", ExpiresAt: &past})

	if _, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("alice"), []string{memory.ConfigIDTDM}); err != nil {
		t.Fatalf("expired ban must not block adds: %v", err)
	}
}

func TestQueueService_AddPlayers_ExplicitTrustGate(t *testing.T) {
	f := newQueueFixture()
	f.communityRepo.PutSettings(community.Settings{
		ID:               memory.CommunityQuakeNet,
		ExplicitTrust:    true,
		ReportExpireTime: 2 * time.Hour,
	})

	_, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("newcomer"), []string{memory.ConfigIDTDM})
	if !errors.Is(err, ErrEligibility) {
		t.Fatalf("expected ErrEligibility for untrusted newcomer, got %v", err)
	}

	f.playerRepo.SetPlayedBefore(memory.CommunityQuakeNet, "veteran", true)
	if _, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("veteran"), []string{memory.ConfigIDTDM}); err != nil {
		t.Fatalf("prior play history must satisfy the trust gate: %v", err)
	}
}

func TestQueueService_AddPlayers_ConfigAllowlistShortCircuitsCommunityDenylist(t *testing.T) {
	f := newQueueFixture()
	f.communityRepo.PutSettings(community.Settings{
		ID:               memory.CommunityQuakeNet,
		DenylistRole:     "shadowbanned",
		ReportExpireTime: 2 * time.Hour,
	})

	cfgs := memory.SeedConfigs()
	cfgs[0].Configs[1].AllowlistRole = "regulars"
	f.pickupRepo = memory.NewPickupRepository(cfgs)
	f.stages = NewStageService(f.pickupRepo, f.playerRepo, nil, nil)
	f.queue = NewQueueService(f.pickupRepo, f.playerRepo, f.communityRepo, f.roles, f.stages, nil, nil)

	// Holds both the config allowlist role and the community denylist role.
	// The config list alone decides.
	f.roles.roles["alice/regulars"] = true
	f.roles.roles["alice/shadowbanned"] = true

	result, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("alice"), []string{memory.ConfigIDTDM})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if len(result.Joined) != 1 {
		t.Fatalf("expected join, got %+v", result)
	}

	result, err = f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("bob"), []string{memory.ConfigIDTDM})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if len(result.Rejected) != 1 {
		t.Fatalf("expected role rejection for bob, got %+v", result)
	}
}

func TestQueueService_AddPlayers_HeldByPendingPickupRejected(t *testing.T) {
	pickupRepo := memory.NewPickupRepository([]memory.CommunityConfigs{
		{
			Community: memory.CommunityQuakeNet,
			Configs: []pickup.Config{
				{
					ID:         "cap4",
					Name:       "2v2 Captains",
					MaxPlayers: 4,
					TeamCount:  2,
					Mode:       pickup.ModeCaptains,
					Rated:      true,
					Enabled:    true,
				},
				{
					ID:         "other",
					Name:       "1v1 Duel",
					MaxPlayers: 2,
					TeamCount:  2,
					Mode:       pickup.ModeElo,
					Rated:      true,
					Enabled:    true,
				},
			},
		},
	})
	playerRepo := memory.NewPlayerRepository()
	communityRepo := memory.NewCommunityRepository(memory.SeedCommunities())
	stages := NewStageService(pickupRepo, playerRepo, nil, nil)
	queue := NewQueueService(pickupRepo, playerRepo, communityRepo, &stubRoles{}, stages, nil, nil)

	for i := 0; i < 4; i++ {
		if _, err := queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref(fmt.Sprintf("p%d", i)), []string{"cap4"}); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}

	active, ok, _ := pickupRepo.GetActive(t.Context(), memory.CommunityQuakeNet, "cap4")
	if !ok || active.Stage != pickup.StageCaptainSelection {
		t.Fatalf("expected captain_selection, got %+v", active)
	}

	// A player held by the pending pickup cannot add anywhere in the
	// community, including other configs.
	_, err := queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("p0"), []string{"other"})
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for held player, got %v", err)
	}

	// Unheld players are unaffected.
	if _, err := queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("free"), []string{"other"}); err != nil {
		t.Fatalf("unheld add failed: %v", err)
	}
}

func TestQueueService_RemovePlayer(t *testing.T) {
	f := newQueueFixture()

	if _, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("alice"), []string{memory.ConfigIDTDM}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref("bob"), []string{memory.ConfigIDTDM}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if err := f.queue.RemovePlayer(t.Context(), memory.CommunityQuakeNet, "alice", memory.ConfigIDTDM); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	active, ok, _ := f.pickupRepo.GetActive(t.Context(), memory.CommunityQuakeNet, memory.ConfigIDTDM)
	if !ok || len(active.Players) != 1 || active.Players[0].ID != "bob" {
		t.Fatalf("unexpected queue after remove: %+v", active)
	}

	// Absent player is a no-op.
	if err := f.queue.RemovePlayer(t.Context(), memory.CommunityQuakeNet, "charlie", memory.ConfigIDTDM); err != nil {
		t.Fatalf("removing absent player must be a no-op: %v", err)
	}

	// Last player leaving clears the active pickup.
	if err := f.queue.RemovePlayer(t.Context(), memory.CommunityQuakeNet, "bob", memory.ConfigIDTDM); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, ok, _ := f.pickupRepo.GetActive(t.Context(), memory.CommunityQuakeNet, memory.ConfigIDTDM); ok {
		t.Fatal("empty pickup must be cleared")
	}
}

func TestQueueService_RemovePlayer_PastFillingRefused(t *testing.T) {
	f := newQueueFixture()

	for i := 0; i < 8; i++ {
		if _, err := f.queue.AddPlayers(t.Context(), memory.CommunityQuakeNet, ref(fmt.Sprintf("p%d", i)), []string{memory.ConfigIDTDM}); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}

	err := f.queue.RemovePlayer(t.Context(), memory.CommunityQuakeNet, "p0", memory.ConfigIDTDM)
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}
