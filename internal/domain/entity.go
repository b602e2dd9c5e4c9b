package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EntityType identifies the kind of on-chain entity carried by a ManageEntity log
type EntityType string

const (
	EntityTypeUser                EntityType = "User"
	EntityTypeTrack               EntityType = "Track"
	EntityTypePlaylist            EntityType = "Playlist"
	EntityTypeFollow              EntityType = "Follow"
	EntityTypeSubscription        EntityType = "Subscription"
	EntityTypeSave                EntityType = "Save"
	EntityTypeRepost              EntityType = "Repost"
	EntityTypeGrant               EntityType = "Grant"
	EntityTypeDashboardWalletUser EntityType = "DashboardWalletUser"
	EntityTypeComment             EntityType = "Comment"
	EntityTypeEvent               EntityType = "Event"
	EntityTypeTrackRoute          EntityType = "TrackRoute"
	EntityTypePlaylistRoute       EntityType = "PlaylistRoute"
)

// ParseEntityType parses the entity type string found in a ManageEntity log
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case EntityTypeUser, EntityTypeTrack, EntityTypePlaylist, EntityTypeGrant,
		EntityTypeDashboardWalletUser, EntityTypeComment, EntityTypeEvent:
		return t, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Action is the verb of a ManageEntity log
type Action string

const (
	ActionCreate      Action = "Create"
	ActionUpdate      Action = "Update"
	ActionDelete      Action = "Delete"
	ActionVerify      Action = "Verify"
	ActionFollow      Action = "Follow"
	ActionUnfollow    Action = "Unfollow"
	ActionSubscribe   Action = "Subscribe"
	ActionUnsubscribe Action = "Unsubscribe"
	ActionSave        Action = "Save"
	ActionUnsave      Action = "Unsave"
	ActionRepost      Action = "Repost"
	ActionUnrepost    Action = "Unrepost"
	ActionApprove     Action = "Approve"
	ActionReject      Action = "Reject"
	ActionPin         Action = "Pin"
	ActionUnpin       Action = "Unpin"
)

var knownActions = map[Action]bool{
	ActionCreate: true, ActionUpdate: true, ActionDelete: true, ActionVerify: true,
	ActionFollow: true, ActionUnfollow: true, ActionSubscribe: true, ActionUnsubscribe: true,
	ActionSave: true, ActionUnsave: true, ActionRepost: true, ActionUnrepost: true,
	ActionApprove: true, ActionReject: true, ActionPin: true, ActionUnpin: true,
}

// ParseAction parses the action string found in a ManageEntity log
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !knownActions[a] {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// ActionEntity is the dispatch key of the resolver table
type ActionEntity struct {
	Action     Action
	EntityType EntityType
}

func (a ActionEntity) String() string {
	return fmt.Sprintf("%s%s", a.Action, a.EntityType)
}

// EntityKey identifies one versioned entity. Composite natural keys are
// joined with ':' in ID, e.g. "12:34" for a follow of user 34 by user 12.
type EntityKey struct {
	Type EntityType
	ID   string
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s/%s", k.Type, k.ID)
}

// NewEntityKey builds a key from one or more natural key parts
func NewEntityKey(t EntityType, parts ...any) EntityKey {
	strs := make([]string, 0, len(parts))
	for _, p := range parts {
		strs = append(strs, fmt.Sprint(p))
	}
	return EntityKey{Type: t, ID: strings.Join(strs, ":")}
}

// IDKey is a shortcut for entities keyed by a single integer id
func IDKey(t EntityType, id int64) EntityKey {
	return EntityKey{Type: t, ID: strconv.FormatInt(id, 10)}
}
