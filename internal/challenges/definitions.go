package challenges

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// Challenge ids of the built in challenges
const (
	ChallengeIDTrackUpload   = "u"
	ChallengeIDFirstPlaylist = "fp"
	ChallengeIDReferred      = "rd"
	ChallengeIDReferrals     = "r"
	ChallengeIDPlayCount     = "pc"
	ChallengeIDContestWinner = "w"
)

// Definition is one entry of the challenge definitions file
type Definition struct {
	ID            string               `json:"id"`
	Type          domain.ChallengeType `json:"type"`
	Amount        int64                `json:"amount"`
	StepCount     *int                 `json:"step_count,omitempty"`
	Active        bool                 `json:"active"`
	StartingBlock uint64               `json:"starting_block"`
	WeeklyPool    *int64               `json:"weekly_pool,omitempty"`
}

// LoadDefinitions reads challenge definitions from a JSON file
func LoadDefinitions(path string) ([]schema.Challenge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read challenge definitions: %w", err)
	}

	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse challenge definitions: %w", err)
	}

	challenges := make([]schema.Challenge, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("challenge definition without id")
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate challenge definition %s", d.ID)
		}
		seen[d.ID] = true

		switch d.Type {
		case domain.ChallengeTypeNumeric, domain.ChallengeTypeAggregate:
			if d.StepCount == nil || *d.StepCount <= 0 {
				return nil, fmt.Errorf("challenge %s of type %s requires a positive step_count", d.ID, d.Type)
			}
		case domain.ChallengeTypeBoolean:
		default:
			return nil, fmt.Errorf("challenge %s has unknown type %q", d.ID, d.Type)
		}

		challenges = append(challenges, schema.Challenge{
			ID:            d.ID,
			Type:          d.Type,
			Amount:        d.Amount,
			StepCount:     d.StepCount,
			Active:        d.Active,
			StartingBlock: d.StartingBlock,
			WeeklyPool:    d.WeeklyPool,
		})
	}
	return challenges, nil
}

// SyncDefinitions upserts the definitions file into the store
func SyncDefinitions(ctx context.Context, st store.ChallengeStore, path string) error {
	challenges, err := LoadDefinitions(path)
	if err != nil {
		return err
	}
	return st.UpsertChallenges(ctx, challenges)
}

// RegisterDefaults creates the built in managers and subscribes them to the bus
func RegisterDefaults(bus *Bus, st store.ChallengeStore) []*Manager {
	managers := []struct {
		event   domain.ChallengeEventType
		manager *Manager
	}{
		{domain.ChallengeEventTrackUpload, NewManager(ChallengeIDTrackUpload, TrackUploadUpdater{}, st)},
		{domain.ChallengeEventFirstPlaylist, NewManager(ChallengeIDFirstPlaylist, BaseUpdater{}, st)},
		{domain.ChallengeEventReferredSignup, NewManager(ChallengeIDReferred, BaseUpdater{}, st)},
		{domain.ChallengeEventReferralSignup, NewManager(ChallengeIDReferrals, ReferralUpdater{}, st)},
		{domain.ChallengeEventTrackPlayed, NewManager(ChallengeIDPlayCount, NewPlayCountUpdater(DefaultPlayMilestones), st)},
		{domain.ChallengeEventRemixContestWinner, NewManager(ChallengeIDContestWinner, ContestWinnerUpdater{}, st)},
	}

	out := make([]*Manager, 0, len(managers))
	for _, m := range managers {
		bus.RegisterListener(m.event, m.manager)
		out = append(out, m.manager)
	}
	return out
}
