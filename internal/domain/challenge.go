package domain

import "time"

// ChallengeEventType names a domain event that challenge managers listen to
type ChallengeEventType string

const (
	ChallengeEventTrackUpload        ChallengeEventType = "track_upload"
	ChallengeEventFirstPlaylist      ChallengeEventType = "first_playlist"
	ChallengeEventReferralSignup     ChallengeEventType = "referral_signup"
	ChallengeEventReferredSignup     ChallengeEventType = "referred_signup"
	ChallengeEventTrackPlayed        ChallengeEventType = "track_played"
	ChallengeEventRemixContestWinner ChallengeEventType = "remix_contest_winner"
)

// ChallengeType is the progress model of a challenge definition
type ChallengeType string

const (
	ChallengeTypeNumeric   ChallengeType = "numeric"
	ChallengeTypeBoolean   ChallengeType = "boolean"
	ChallengeTypeAggregate ChallengeType = "aggregate"
)

// ChallengeEvent is one domain event flowing through the challenge bus
type ChallengeEvent struct {
	EventType     ChallengeEventType
	UserID        int64
	BlockNumber   uint64
	BlockDatetime time.Time
	Extra         map[string]any
}

// ChallengeEventMessage is the durable queue wire format
type ChallengeEventMessage struct {
	Event         string         `json:"event"`
	UserID        int64          `json:"user_id"`
	BlockNumber   uint64         `json:"block_number"`
	BlockDatetime int64          `json:"block_datetime"`
	Extra         map[string]any `json:"extra"`
}

// ToMessage converts the event into its wire format
func (e ChallengeEvent) ToMessage() ChallengeEventMessage {
	extra := e.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	return ChallengeEventMessage{
		Event:         string(e.EventType),
		UserID:        e.UserID,
		BlockNumber:   e.BlockNumber,
		BlockDatetime: e.BlockDatetime.Unix(),
		Extra:         extra,
	}
}

// ToEvent converts a wire message back into an event
func (m ChallengeEventMessage) ToEvent() ChallengeEvent {
	return ChallengeEvent{
		EventType:     ChallengeEventType(m.Event),
		UserID:        m.UserID,
		BlockNumber:   m.BlockNumber,
		BlockDatetime: time.Unix(m.BlockDatetime, 0).UTC(),
		Extra:         m.Extra,
	}
}

// ExtraInt64 reads an integer value out of an event's extra map. JSON round
// trips turn numbers into float64, so both shapes are accepted.
func (e ChallengeEvent) ExtraInt64(key string) (int64, bool) {
	v, ok := e.Extra[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case uint64:
		return int64(n), true //nolint:gosec,G115
	}
	return 0, false
}
