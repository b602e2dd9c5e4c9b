package entitymanager

import (
	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// Resolver turns one ManageEntity event into new entity versions.
// Resolvers read only through Params.World and never touch storage.
type Resolver interface {
	// Prefetch adds the keys and lookups the event needs. Params.World is nil here.
	Prefetch(p *Params, l *Lookups)
	// Validate returns a validation error when the event must be skipped
	Validate(p *Params) error
	// Apply returns the new versions produced by a validated event
	Apply(p *Params) (*Result, error)
}

// resolverFuncs adapts plain functions to the Resolver interface
type resolverFuncs struct {
	prefetch func(p *Params, l *Lookups)
	validate func(p *Params) error
	apply    func(p *Params) (*Result, error)
}

func (r resolverFuncs) Prefetch(p *Params, l *Lookups) {
	if r.prefetch != nil {
		r.prefetch(p, l)
	}
}

func (r resolverFuncs) Validate(p *Params) error {
	if r.validate == nil {
		return nil
	}
	return r.validate(p)
}

func (r resolverFuncs) Apply(p *Params) (*Result, error) {
	return r.apply(p)
}

func on(a domain.Action, t domain.EntityType) domain.ActionEntity {
	return domain.ActionEntity{Action: a, EntityType: t}
}

// DefaultResolvers returns the dispatch table of every supported action
func DefaultResolvers() map[domain.ActionEntity]Resolver {
	return map[domain.ActionEntity]Resolver{
		on(domain.ActionCreate, domain.EntityTypeUser): resolverFuncs{prefetchUser, validateCreateUser, createUser},
		on(domain.ActionUpdate, domain.EntityTypeUser): resolverFuncs{prefetchUser, validateUpdateUser, updateUser},
		on(domain.ActionVerify, domain.EntityTypeUser): resolverFuncs{prefetchUser, validateVerifyUser, verifyUser},

		on(domain.ActionCreate, domain.EntityTypeTrack): resolverFuncs{prefetchTrack, validateCreateTrack, createTrack},
		on(domain.ActionUpdate, domain.EntityTypeTrack): resolverFuncs{prefetchTrack, validateUpdateTrack, updateTrack},
		on(domain.ActionDelete, domain.EntityTypeTrack): resolverFuncs{prefetchTrack, validateDeleteTrack, deleteTrack},

		on(domain.ActionCreate, domain.EntityTypePlaylist): resolverFuncs{prefetchPlaylist, validateCreatePlaylist, createPlaylist},
		on(domain.ActionUpdate, domain.EntityTypePlaylist): resolverFuncs{prefetchPlaylist, validateUpdatePlaylist, updatePlaylist},
		on(domain.ActionDelete, domain.EntityTypePlaylist): resolverFuncs{prefetchPlaylist, validateDeletePlaylist, deletePlaylist},

		on(domain.ActionFollow, domain.EntityTypeUser):      resolverFuncs{prefetchFollow, validateFollow, follow},
		on(domain.ActionUnfollow, domain.EntityTypeUser):    resolverFuncs{prefetchFollow, validateFollow, unfollow},
		on(domain.ActionSubscribe, domain.EntityTypeUser):   resolverFuncs{prefetchSubscription, validateSubscription, subscribe},
		on(domain.ActionUnsubscribe, domain.EntityTypeUser): resolverFuncs{prefetchSubscription, validateSubscription, unsubscribe},

		on(domain.ActionSave, domain.EntityTypeTrack):        resolverFuncs{prefetchSocial, validateSocial, toggleSocial},
		on(domain.ActionUnsave, domain.EntityTypeTrack):      resolverFuncs{prefetchSocial, validateSocial, toggleSocial},
		on(domain.ActionRepost, domain.EntityTypeTrack):      resolverFuncs{prefetchSocial, validateSocial, toggleSocial},
		on(domain.ActionUnrepost, domain.EntityTypeTrack):    resolverFuncs{prefetchSocial, validateSocial, toggleSocial},
		on(domain.ActionSave, domain.EntityTypePlaylist):     resolverFuncs{prefetchSocial, validateSocial, toggleSocial},
		on(domain.ActionUnsave, domain.EntityTypePlaylist):   resolverFuncs{prefetchSocial, validateSocial, toggleSocial},
		on(domain.ActionRepost, domain.EntityTypePlaylist):   resolverFuncs{prefetchSocial, validateSocial, toggleSocial},
		on(domain.ActionUnrepost, domain.EntityTypePlaylist): resolverFuncs{prefetchSocial, validateSocial, toggleSocial},

		on(domain.ActionCreate, domain.EntityTypeGrant):  resolverFuncs{prefetchGrantCreate, validateCreateGrant, createGrant},
		on(domain.ActionDelete, domain.EntityTypeGrant):  resolverFuncs{prefetchGrantCreate, validateRevokeGrant, revokeGrant},
		on(domain.ActionApprove, domain.EntityTypeGrant): resolverFuncs{prefetchGrantResponse, validateRespondGrant, approveGrant},
		on(domain.ActionReject, domain.EntityTypeGrant):  resolverFuncs{prefetchGrantResponse, validateRespondGrant, rejectGrant},

		on(domain.ActionCreate, domain.EntityTypeDashboardWalletUser): resolverFuncs{prefetchDashboardWallet, validateCreateDashboardWallet, createDashboardWallet},
		on(domain.ActionDelete, domain.EntityTypeDashboardWalletUser): resolverFuncs{prefetchDashboardWallet, validateDeleteDashboardWallet, deleteDashboardWallet},

		on(domain.ActionCreate, domain.EntityTypeComment): resolverFuncs{prefetchComment, validateCreateComment, createComment},
		on(domain.ActionUpdate, domain.EntityTypeComment): resolverFuncs{prefetchComment, validateUpdateComment, updateComment},
		on(domain.ActionDelete, domain.EntityTypeComment): resolverFuncs{prefetchComment, validateDeleteComment, deleteComment},
		on(domain.ActionPin, domain.EntityTypeComment):    resolverFuncs{prefetchComment, validatePinComment, pinComment},
		on(domain.ActionUnpin, domain.EntityTypeComment):  resolverFuncs{prefetchComment, validatePinComment, unpinComment},

		on(domain.ActionCreate, domain.EntityTypeEvent): resolverFuncs{prefetchContest, validateCreateContest, createContest},
		on(domain.ActionUpdate, domain.EntityTypeEvent): resolverFuncs{prefetchContest, validateUpdateContest, updateContest},
		on(domain.ActionDelete, domain.EntityTypeEvent): resolverFuncs{prefetchContest, validateDeleteContest, deleteContest},
	}
}
