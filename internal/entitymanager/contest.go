package entitymanager

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

const contestTypeRemix = "remix_contest"

type contestMetadata struct {
	EventType  string          `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   *int64          `json:"entity_id"`
	EndDate    *time.Time      `json:"end_date"`
	EventData  json.RawMessage `json:"event_data"`
}

// contestData is the part of event_data the indexer interprets
type contestData struct {
	Winners []int64 `json:"winners"`
}

func winnersOf(raw []byte) ([]int64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var d contestData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, domain.InvalidCause(err, "malformed event_data")
	}
	return d.Winners, nil
}

func prefetchContest(p *Params, l *Lookups) {
	l.add(domain.IDKey(domain.EntityTypeEvent, p.Event.EntityID))

	var m contestMetadata
	peek(p, &m)
	if m.EntityID != nil {
		l.add(domain.IDKey(domain.EntityTypeTrack, *m.EntityID))
	}
	winners, _ := winnersOf(m.EventData)
	for _, id := range winners {
		l.add(domain.IDKey(domain.EntityTypeTrack, id))
	}
}

// hostedContest returns the live contest of the event, checking the acting user hosts it
func hostedContest(p *Params) (*schema.ContestEvent, error) {
	e := p.World.ContestEvent(p.Event.EntityID)
	if !live(e) {
		return nil, domain.InvalidCause(domain.ErrEntityNotFound, "event %d does not exist", p.Event.EntityID)
	}
	if e.UserID != p.Event.UserID {
		return nil, domain.InvalidCause(domain.ErrUnauthorized, "user %d does not host event %d", p.Event.UserID, e.EventID)
	}
	if _, err := p.authorize(p.Event.UserID); err != nil {
		return nil, err
	}
	return e, nil
}

func validateWinners(p *Params, winners []int64) error {
	seen := make(map[int64]struct{}, len(winners))
	for _, id := range winners {
		if _, ok := seen[id]; ok {
			return domain.Invalid("track %d is listed as winner more than once", id)
		}
		seen[id] = struct{}{}
		if !live(p.World.Track(id)) {
			return domain.InvalidCause(domain.ErrEntityNotFound, "winning track %d does not exist", id)
		}
	}
	return nil
}

func validateCreateContest(p *Params) error {
	ev := p.Event
	if err := checkCreateID(domain.EntityTypeEvent, ev.EntityID, p.Config.Offsets.Event); err != nil {
		return err
	}
	if p.World.ContestEvent(ev.EntityID) != nil {
		return domain.Invalid("event %d already exists", ev.EntityID)
	}
	host, err := p.authorize(ev.UserID)
	if err != nil {
		return err
	}
	if !host.IsVerified {
		return domain.Invalid("user %d is not verified and may not host a contest", ev.UserID)
	}

	var m contestMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	if m.EventType != contestTypeRemix {
		return domain.Invalid("unsupported event type %q", m.EventType)
	}
	if m.EntityType != "" && m.EntityType != commentEntityTypeTrack {
		return domain.Invalid("contests on %s are not supported", m.EntityType)
	}
	if m.EntityID == nil {
		return domain.MissingMetadata("entity_id")
	}
	t := p.World.Track(*m.EntityID)
	if !live(t) {
		return domain.InvalidCause(domain.ErrEntityNotFound, "track %d does not exist", *m.EntityID)
	}
	if t.OwnerID != ev.UserID {
		return domain.InvalidCause(domain.ErrUnauthorized, "user %d does not own track %d", ev.UserID, t.TrackID)
	}
	if m.EndDate != nil && !m.EndDate.After(ev.BlockTimestamp) {
		return domain.Invalid("contest end date %s is in the past", m.EndDate.Format(time.RFC3339))
	}
	winners, err := winnersOf(m.EventData)
	if err != nil {
		return err
	}
	if len(winners) > 0 {
		return domain.Invalid("a new contest may not have winners")
	}
	return nil
}

func createContest(p *Params) (*Result, error) {
	var m contestMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}

	e := &schema.ContestEvent{
		EventID:    p.Event.EntityID,
		EventType:  m.EventType,
		UserID:     p.Event.UserID,
		TargetType: commentEntityTypeTrack,
		EntityID:   *m.EntityID,
		EndDate:    m.EndDate,
		EventData:  datatypes.JSON(m.EventData),
	}
	return &Result{Records: []schema.Record{p.stamp(e)}}, nil
}

func validateUpdateContest(p *Params) error {
	if _, err := hostedContest(p); err != nil {
		return err
	}
	var m contestMetadata
	if err := p.decode(&m); err != nil {
		return err
	}
	winners, err := winnersOf(m.EventData)
	if err != nil {
		return err
	}
	return validateWinners(p, winners)
}

// updateContest rewrites the contest and rewards every winner not listed before
func updateContest(p *Params) (*Result, error) {
	var m contestMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}

	cur := p.World.ContestEvent(p.Event.EntityID)
	before, _ := winnersOf(cur.EventData)
	after, err := winnersOf(m.EventData)
	if err != nil {
		return nil, err
	}

	e := cur.Clone().(*schema.ContestEvent)
	if m.EndDate != nil {
		e.EndDate = m.EndDate
	}
	if len(m.EventData) > 0 {
		e.EventData = datatypes.JSON(m.EventData)
	}

	res := &Result{Records: []schema.Record{p.stamp(e)}}
	known := make(map[int64]struct{}, len(before))
	for _, id := range before {
		known[id] = struct{}{}
	}
	for _, id := range after {
		if _, ok := known[id]; ok {
			continue
		}
		t := p.World.Track(id)
		res.ChallengeEvents = append(res.ChallengeEvents, p.challengeEvent(
			domain.ChallengeEventRemixContestWinner,
			t.OwnerID,
			map[string]any{"contest_id": e.EventID, "host_id": e.UserID},
		))
	}
	return res, nil
}

func validateDeleteContest(p *Params) error {
	e := p.World.ContestEvent(p.Event.EntityID)
	if e == nil {
		return domain.InvalidCause(domain.ErrEntityNotFound, "event %d does not exist", p.Event.EntityID)
	}
	if e.UserID != p.Event.UserID {
		return domain.InvalidCause(domain.ErrUnauthorized, "user %d does not host event %d", p.Event.UserID, e.EventID)
	}
	_, err := p.authorize(p.Event.UserID)
	return err
}

func deleteContest(p *Params) (*Result, error) {
	cur := p.World.ContestEvent(p.Event.EntityID)
	if cur.IsDelete {
		return noop()
	}
	return &Result{Records: []schema.Record{p.tombstone(cur.Clone())}}, nil
}
