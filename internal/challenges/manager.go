package challenges

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/logger"
	"github.com/feral-file/ff-entity-indexer/internal/store"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// Manager turns challenge events into user challenge progress for one challenge
type Manager struct {
	challengeID string
	updater     Updater
	store       store.ChallengeStore

	mu         sync.Mutex
	definition *schema.Challenge
}

// NewManager creates a manager for challengeID
func NewManager(challengeID string, updater Updater, st store.ChallengeStore) *Manager {
	return &Manager{
		challengeID: challengeID,
		updater:     updater,
		store:       st,
	}
}

// ChallengeID returns the id of the managed challenge
func (m *Manager) ChallengeID() string {
	return m.challengeID
}

// loadDefinition reads the challenge definition on first use and keeps it
// for the lifetime of the manager
func (m *Manager) loadDefinition(ctx context.Context) (*schema.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.definition != nil {
		return m.definition, nil
	}
	c, err := m.store.GetChallenge(ctx, m.challengeID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("challenge %s is not defined", m.challengeID)
	}
	m.definition = c
	return c, nil
}

// Process applies a batch of events in one database transaction. Nothing is
// written when any step fails.
func (m *Manager) Process(ctx context.Context, events []domain.ChallengeEvent) error {
	def, err := m.loadDefinition(ctx)
	if err != nil {
		return err
	}
	if !def.Active {
		return nil
	}

	var specifiers []string
	bySpecifier := make(map[string]domain.ChallengeEvent)
	for _, e := range events {
		if e.BlockNumber < def.StartingBlock {
			continue
		}
		s := m.updater.GenerateSpecifier(e.UserID, e.Extra)
		if _, ok := bySpecifier[s]; !ok {
			specifiers = append(specifiers, s)
		}
		bySpecifier[s] = e
	}
	if len(specifiers) == 0 {
		return nil
	}

	err = m.store.Transaction(ctx, func(tx store.ChallengeStore) error {
		return m.process(ctx, tx, def, specifiers, bySpecifier)
	})
	if err != nil {
		return fmt.Errorf("failed to process %s events: %w", m.challengeID, err)
	}
	return nil
}

func (m *Manager) process(ctx context.Context, tx store.ChallengeStore, def *schema.Challenge, specifiers []string, bySpecifier map[string]domain.ChallengeEvent) error {
	existing, err := tx.GetUserChallenges(ctx, m.challengeID, specifiers)
	if err != nil {
		return err
	}
	existingBySpecifier := make(map[string]*schema.UserChallenge, len(existing))
	for i := range existing {
		existingBySpecifier[existing[i].Specifier] = &existing[i]
	}

	userIDs := make([]int64, 0, len(specifiers))
	seenUsers := make(map[int64]bool)
	for _, s := range specifiers {
		if id := bySpecifier[s].UserID; !seenUsers[id] {
			seenUsers[id] = true
			userIDs = append(userIDs, id)
		}
	}
	deactivated, err := tx.GetDeactivatedUserIDs(ctx, userIDs)
	if err != nil {
		return err
	}

	var (
		toUpdate []*schema.UserChallenge
		created  int
	)
	for _, s := range specifiers {
		row, ok := existingBySpecifier[s]
		if !ok || deactivated[row.UserID] {
			continue
		}
		if !row.IsComplete || updatesCompleted(m.updater) {
			toUpdate = append(toUpdate, row)
		}
	}

	if def.Type == domain.ChallengeTypeAggregate {
		created, err = m.createAggregate(ctx, tx, def, specifiers, bySpecifier, existingBySpecifier, deactivated, userIDs)
		if err != nil {
			return err
		}
	} else {
		for _, s := range specifiers {
			e := bySpecifier[s]
			if _, ok := existingBySpecifier[s]; ok || deactivated[e.UserID] {
				continue
			}
			zero := 0
			toUpdate = append(toUpdate, &schema.UserChallenge{
				ChallengeID:      m.challengeID,
				Specifier:        s,
				UserID:           e.UserID,
				CurrentStepCount: &zero,
				Amount:           def.Amount,
				CreatedAt:        e.BlockDatetime,
			})
			created++
		}
	}

	if len(toUpdate) > 0 {
		if err := m.updater.UpdateUserChallenges(ctx, tx, def, toUpdate, bySpecifier); err != nil {
			return err
		}
		rows := make([]schema.UserChallenge, 0, len(toUpdate))
		for _, row := range toUpdate {
			stampCompletion(row, bySpecifier[row.Specifier])
			rows = append(rows, *row)
		}
		if err := tx.SaveUserChallenges(ctx, rows); err != nil {
			return err
		}
	}

	logger.DebugCtx(ctx, "Processed challenge events",
		zap.String("challenge_id", m.challengeID),
		zap.Int("specifiers", len(specifiers)),
		zap.Int("created", created),
		zap.Int("updated", len(toUpdate)))
	return nil
}

// createAggregate creates one completed row per new specifier while the
// user is below the step count and the updater allows it. Rows are saved one
// at a time so that the updater sees earlier rows of the same batch.
func (m *Manager) createAggregate(
	ctx context.Context,
	tx store.ChallengeStore,
	def *schema.Challenge,
	specifiers []string,
	bySpecifier map[string]domain.ChallengeEvent,
	existing map[string]*schema.UserChallenge,
	deactivated map[int64]bool,
	userIDs []int64,
) (int, error) {
	completed, err := tx.CountCompletedUserChallenges(ctx, m.challengeID, userIDs)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, s := range specifiers {
		e := bySpecifier[s]
		if _, ok := existing[s]; ok || deactivated[e.UserID] {
			continue
		}
		if def.StepCount != nil && completed[e.UserID] >= int64(*def.StepCount) {
			continue
		}
		ok, err := m.updater.ShouldCreateNewChallenge(ctx, tx, e)
		if err != nil {
			return created, err
		}
		if !ok {
			continue
		}

		row := schema.UserChallenge{
			ChallengeID: m.challengeID,
			Specifier:   s,
			UserID:      e.UserID,
			IsComplete:  true,
			Amount:      def.Amount,
			CreatedAt:   e.BlockDatetime,
		}
		stampCompletion(&row, e)
		if err := tx.SaveUserChallenges(ctx, []schema.UserChallenge{row}); err != nil {
			return created, err
		}
		completed[e.UserID]++
		created++
	}
	return created, nil
}

// stampCompletion records the block of the event that completed row
func stampCompletion(row *schema.UserChallenge, e domain.ChallengeEvent) {
	if !row.IsComplete || row.CompletedBlocknumber != nil {
		return
	}
	bn := e.BlockNumber
	at := e.BlockDatetime
	row.CompletedBlocknumber = &bn
	row.CompletedAt = &at
}
