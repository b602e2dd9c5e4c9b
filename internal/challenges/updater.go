package challenges

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

// Updater holds the challenge specific rules applied by a Manager
type Updater interface {
	// GenerateSpecifier names the user challenge an event belongs to
	GenerateSpecifier(userID int64, extra map[string]any) string
	// ShouldCreateNewChallenge decides whether an aggregate challenge may gain a row for the event
	ShouldCreateNewChallenge(ctx context.Context, tx store.ChallengeStore, event domain.ChallengeEvent) (bool, error)
	// UpdateUserChallenges advances the progress of rows in place. events holds
	// the latest event of every specifier in the batch.
	UpdateUserChallenges(ctx context.Context, tx store.ChallengeStore, challenge *schema.Challenge, rows []*schema.UserChallenge, events map[string]domain.ChallengeEvent) error
}

// completedUpdater is implemented by updaters that keep advancing rows after completion
type completedUpdater interface {
	UpdatesCompleted() bool
}

func updatesCompleted(u Updater) bool {
	c, ok := u.(completedUpdater)
	return ok && c.UpdatesCompleted()
}

// BaseUpdater provides the default rules: the user id is the specifier, every
// aggregate event may create a row, and every event advances one step
type BaseUpdater struct{}

func (BaseUpdater) GenerateSpecifier(userID int64, _ map[string]any) string {
	return strconv.FormatInt(userID, 10)
}

func (BaseUpdater) ShouldCreateNewChallenge(context.Context, store.ChallengeStore, domain.ChallengeEvent) (bool, error) {
	return true, nil
}

func (BaseUpdater) UpdateUserChallenges(_ context.Context, _ store.ChallengeStore, challenge *schema.Challenge, rows []*schema.UserChallenge, _ map[string]domain.ChallengeEvent) error {
	for _, row := range rows {
		if challenge.Type == domain.ChallengeTypeAggregate {
			continue
		}
		if challenge.Type == domain.ChallengeTypeBoolean || challenge.StepCount == nil {
			row.IsComplete = true
			continue
		}
		setSteps(row, stepValue(row)+1, *challenge.StepCount)
	}
	return nil
}

func stepValue(row *schema.UserChallenge) int {
	if row.CurrentStepCount == nil {
		return 0
	}
	return *row.CurrentStepCount
}

func setSteps(row *schema.UserChallenge, steps, stepCount int) {
	row.CurrentStepCount = &steps
	row.IsComplete = steps >= stepCount
}

// TrackUploadUpdater counts the live tracks of the uploader
type TrackUploadUpdater struct {
	BaseUpdater
}

func (TrackUploadUpdater) UpdateUserChallenges(ctx context.Context, tx store.ChallengeStore, challenge *schema.Challenge, rows []*schema.UserChallenge, _ map[string]domain.ChallengeEvent) error {
	stepCount := 1
	if challenge.StepCount != nil {
		stepCount = *challenge.StepCount
	}
	for _, row := range rows {
		tracks, err := tx.CountUserTracks(ctx, row.UserID)
		if err != nil {
			return err
		}
		setSteps(row, min(int(tracks), stepCount), stepCount)
	}
	return nil
}

// ReferralUpdater keeps one row per referred user
type ReferralUpdater struct {
	BaseUpdater
}

func (ReferralUpdater) GenerateSpecifier(userID int64, extra map[string]any) string {
	referred, _ := domain.ChallengeEvent{Extra: extra}.ExtraInt64("referred_user_id")
	return fmt.Sprintf("%d-%d", userID, referred)
}

// Milestone is a play count threshold and its reward
type Milestone struct {
	Plays  int
	Amount int64
}

// DefaultPlayMilestones are the play count thresholds of the play count challenge
var DefaultPlayMilestones = []Milestone{
	{Plays: 250, Amount: 25},
	{Plays: 1000, Amount: 100},
	{Plays: 10000, Amount: 1000},
}

// PlayCountUpdater tracks the plays of an artist's tracks. The row completes
// at the first milestone reached and its amount stays pinned to that
// milestone while the step count keeps following the plays.
type PlayCountUpdater struct {
	BaseUpdater
	Milestones []Milestone
}

// NewPlayCountUpdater creates an updater over milestones, sorted by plays
func NewPlayCountUpdater(milestones []Milestone) *PlayCountUpdater {
	ms := append([]Milestone(nil), milestones...)
	sort.Slice(ms, func(i, j int) bool { return ms[i].Plays < ms[j].Plays })
	return &PlayCountUpdater{Milestones: ms}
}

func (*PlayCountUpdater) UpdatesCompleted() bool {
	return true
}

func (u *PlayCountUpdater) UpdateUserChallenges(ctx context.Context, tx store.ChallengeStore, _ *schema.Challenge, rows []*schema.UserChallenge, _ map[string]domain.ChallengeEvent) error {
	for _, row := range rows {
		plays, err := tx.CountUserPlays(ctx, row.UserID)
		if err != nil {
			return err
		}
		steps := int(plays)
		row.CurrentStepCount = &steps
		if row.IsComplete {
			continue
		}
		if m, ok := u.reached(steps); ok {
			row.IsComplete = true
			row.Amount = m.Amount
		}
	}
	return nil
}

// reached returns the highest milestone at or below plays
func (u *PlayCountUpdater) reached(plays int) (Milestone, bool) {
	var (
		best Milestone
		ok   bool
	)
	for _, m := range u.Milestones {
		if plays >= m.Plays {
			best, ok = m, true
		}
	}
	return best, ok
}

const (
	// WinnerWeeklyLimit is the number of winner rewards allowed per rolling window
	WinnerWeeklyLimit = 5
	winnerWindow      = 7 * 24 * time.Hour
)

// ContestWinnerUpdater rewards remix contest winners once per contest
type ContestWinnerUpdater struct {
	BaseUpdater
}

func (ContestWinnerUpdater) GenerateSpecifier(userID int64, extra map[string]any) string {
	contestID, _ := domain.ChallengeEvent{Extra: extra}.ExtraInt64("contest_id")
	return fmt.Sprintf("%d-%d", contestID, userID)
}

// ShouldCreateNewChallenge caps winner rewards to WinnerWeeklyLimit over the
// last seven days. The count covers every row of the challenge, not only
// the rows of the event's host.
func (ContestWinnerUpdater) ShouldCreateNewChallenge(ctx context.Context, tx store.ChallengeStore, event domain.ChallengeEvent) (bool, error) {
	n, err := tx.CountUserChallengesSince(ctx, ChallengeIDContestWinner, event.BlockDatetime.Add(-winnerWindow))
	if err != nil {
		return false, err
	}
	return n < WinnerWeeklyLimit, nil
}
