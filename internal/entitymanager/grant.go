package entitymanager

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

type grantMetadata struct {
	GranteeAddress string `json:"grantee_address"`
	GrantorUserID  int64  `json:"grantor_user_id"`
}

// ownWallet checks that the signer is the user's own wallet. Grants cannot be
// managed through other grants.
func (p *Params) ownWallet(userID int64) (*schema.User, error) {
	u, err := p.liveUser(userID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(u.Wallet, p.Event.SignerAddress) {
		return nil, domain.InvalidCause(domain.ErrUnauthorized, "signer %s is not the wallet of user %d", p.Event.SignerAddress, userID)
	}
	return u, nil
}

func prefetchGrantCreate(p *Params, l *Lookups) {
	var m grantMetadata
	peek(p, &m)
	if m.GranteeAddress != "" {
		l.add(grantKey(m.GranteeAddress, p.Event.UserID))
		l.addWallet(m.GranteeAddress)
	}
}

func decodeGrantee(p *Params) (string, error) {
	var m grantMetadata
	if err := p.decode(&m); err != nil {
		return "", err
	}
	if m.GranteeAddress == "" {
		return "", domain.MissingMetadata("grantee_address")
	}
	if !common.IsHexAddress(m.GranteeAddress) {
		return "", domain.Invalid("grantee address %q is not an address", m.GranteeAddress)
	}
	return strings.ToLower(m.GranteeAddress), nil
}

func validateCreateGrant(p *Params) error {
	u, err := p.ownWallet(p.Event.UserID)
	if err != nil {
		return err
	}
	grantee, err := decodeGrantee(p)
	if err != nil {
		return err
	}
	if grantee == u.Wallet {
		return domain.Invalid("user %d cannot grant their own wallet", u.UserID)
	}
	return nil
}

// createGrant creates a grant. Grants to the wallet of an existing user wait
// for that user's approval; grants to any other address are approved at once.
func createGrant(p *Params) (*Result, error) {
	grantee, err := decodeGrantee(p)
	if err != nil {
		return nil, err
	}

	cur := p.World.Grant(grantee, p.Event.UserID)
	if live(cur) && !cur.IsRevoked {
		return noop()
	}

	g := &schema.Grant{GranteeAddress: grantee, UserID: p.Event.UserID}
	if cur != nil {
		g = cur.Clone().(*schema.Grant)
	}
	g.IsRevoked = false
	g.IsApproved = p.World.UserByWallet(grantee) == nil
	return &Result{Records: []schema.Record{p.stamp(g)}}, nil
}

func validateRevokeGrant(p *Params) error {
	if _, err := p.ownWallet(p.Event.UserID); err != nil {
		return err
	}
	grantee, err := decodeGrantee(p)
	if err != nil {
		return err
	}
	if !live(p.World.Grant(grantee, p.Event.UserID)) {
		return domain.InvalidCause(domain.ErrEntityNotFound, "grant from user %d to %s does not exist", p.Event.UserID, grantee)
	}
	return nil
}

func revokeGrant(p *Params) (*Result, error) {
	grantee, err := decodeGrantee(p)
	if err != nil {
		return nil, err
	}

	cur := p.World.Grant(grantee, p.Event.UserID)
	if cur.IsRevoked {
		return noop()
	}
	g := cur.Clone().(*schema.Grant)
	g.IsRevoked = true
	return &Result{Records: []schema.Record{p.stamp(g)}}, nil
}

func prefetchGrantResponse(p *Params, l *Lookups) {
	var m grantMetadata
	peek(p, &m)
	if m.GrantorUserID != 0 {
		l.addUsers(m.GrantorUserID)
		l.add(grantKey(p.signer(), m.GrantorUserID))
	}
}

// pendingGrant returns the grant the signing grantee responds to
func pendingGrant(p *Params) (*schema.Grant, error) {
	var m grantMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}
	if m.GrantorUserID == 0 {
		return nil, domain.MissingMetadata("grantor_user_id")
	}
	g := p.World.Grant(p.signer(), m.GrantorUserID)
	if !live(g) || g.IsRevoked {
		return nil, domain.InvalidCause(domain.ErrEntityNotFound, "no active grant from user %d to %s", m.GrantorUserID, p.signer())
	}
	return g, nil
}

func validateRespondGrant(p *Params) error {
	if _, err := p.ownWallet(p.Event.UserID); err != nil {
		return err
	}
	_, err := pendingGrant(p)
	return err
}

func approveGrant(p *Params) (*Result, error) {
	cur, err := pendingGrant(p)
	if err != nil {
		return nil, err
	}
	if cur.IsApproved {
		return noop()
	}
	g := cur.Clone().(*schema.Grant)
	g.IsApproved = true
	return &Result{Records: []schema.Record{p.stamp(g)}}, nil
}

func rejectGrant(p *Params) (*Result, error) {
	cur, err := pendingGrant(p)
	if err != nil {
		return nil, err
	}
	g := cur.Clone().(*schema.Grant)
	g.IsApproved = false
	g.IsRevoked = true
	return &Result{Records: []schema.Record{p.stamp(g)}}, nil
}
