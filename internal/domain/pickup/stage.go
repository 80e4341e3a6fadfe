package pickup

import "fmt"

// Stage is the lifecycle position of a pickup. Transitions are one-directional
// and restricted to the table below; anything else is rejected outright.
type Stage string

const (
	StageFilling          Stage = "filling"
	StagePickingManual    Stage = "picking_manual"
	StageMapVote          Stage = "mapvote"
	StageCaptainSelection Stage = "captain_selection"
	StageElo              Stage = "elo"
	StageAwaitingOutcome  Stage = "awaiting_outcome"
	StageRated            Stage = "rated"
	StageExpired          Stage = "expired"
)

var stageTransitions = map[Stage][]Stage{
	StageFilling:          {StagePickingManual, StageMapVote, StageCaptainSelection, StageElo, StageAwaitingOutcome},
	StagePickingManual:    {StageAwaitingOutcome},
	StageMapVote:          {StageAwaitingOutcome},
	StageCaptainSelection: {StageAwaitingOutcome},
	StageElo:              {StageAwaitingOutcome},
	StageAwaitingOutcome:  {StageRated, StageExpired},
	StageRated:            nil,
	StageExpired:          nil,
}

func (s Stage) Valid() bool {
	_, ok := stageTransitions[s]
	return ok
}

// Pending reports whether the stage blocks its players from adding to any
// other pickup in the community.
func (s Stage) Pending() bool {
	switch s {
	case StagePickingManual, StageMapVote, StageCaptainSelection:
		return true
	}
	return false
}

func (s Stage) Terminal() bool {
	return s == StageRated || s == StageExpired
}

// Transition validates the move from s to next against the transition table.
func (s Stage) Transition(next Stage) (Stage, error) {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return next, nil
		}
	}
	return s, fmt.Errorf("illegal stage transition %s -> %s", s, next)
}
