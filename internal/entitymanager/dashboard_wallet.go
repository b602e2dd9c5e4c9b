package entitymanager

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-entity-indexer/internal/domain"
	"github.com/feral-file/ff-entity-indexer/internal/store/schema"
)

type dashboardWalletMetadata struct {
	Wallet          string `json:"wallet"`
	WalletSignature *struct {
		Message   string `json:"message"`
		Signature string `json:"signature"`
	} `json:"wallet_signature"`
}

func prefetchDashboardWallet(p *Params, l *Lookups) {
	var m dashboardWalletMetadata
	peek(p, &m)
	if m.Wallet != "" {
		l.add(dashboardWalletKey(m.Wallet))
	}
}

func decodeDashboardWallet(p *Params) (*dashboardWalletMetadata, error) {
	var m dashboardWalletMetadata
	if err := p.decode(&m); err != nil {
		return nil, err
	}
	if m.Wallet == "" {
		return nil, domain.MissingMetadata("wallet")
	}
	if !common.IsHexAddress(m.Wallet) {
		return nil, domain.Invalid("wallet %q is not an address", m.Wallet)
	}
	m.Wallet = strings.ToLower(m.Wallet)
	return &m, nil
}

func validateCreateDashboardWallet(p *Params) error {
	if _, err := p.authorize(p.Event.UserID); err != nil {
		return err
	}
	m, err := decodeDashboardWallet(p)
	if err != nil {
		return err
	}
	if m.WalletSignature == nil || m.WalletSignature.Signature == "" {
		return domain.MissingMetadata("wallet_signature")
	}

	signer, err := recoverPersonalSigner(m.WalletSignature.Message, m.WalletSignature.Signature)
	if err != nil {
		return domain.InvalidCause(err, "invalid wallet signature")
	}
	if signer != m.Wallet {
		return domain.InvalidCause(domain.ErrUnauthorized, "wallet signature was made by %s, not %s", signer, m.Wallet)
	}

	if cur := p.World.DashboardWalletUser(m.Wallet); live(cur) && cur.UserID != p.Event.UserID {
		return domain.Invalid("wallet %s is already attached to user %d", m.Wallet, cur.UserID)
	}
	return nil
}

func createDashboardWallet(p *Params) (*Result, error) {
	m, err := decodeDashboardWallet(p)
	if err != nil {
		return nil, err
	}

	cur := p.World.DashboardWalletUser(m.Wallet)
	if live(cur) {
		return noop()
	}
	d := &schema.DashboardWalletUser{Wallet: m.Wallet, UserID: p.Event.UserID}
	if cur != nil {
		d = cur.Clone().(*schema.DashboardWalletUser)
		d.UserID = p.Event.UserID
	}
	return &Result{Records: []schema.Record{p.stamp(d)}}, nil
}

// validateDeleteDashboardWallet allows the owning user or the wallet itself to detach it
func validateDeleteDashboardWallet(p *Params) error {
	m, err := decodeDashboardWallet(p)
	if err != nil {
		return err
	}
	cur := p.World.DashboardWalletUser(m.Wallet)
	if cur == nil {
		return domain.InvalidCause(domain.ErrEntityNotFound, "wallet %s is not attached", m.Wallet)
	}
	if p.signer() == m.Wallet {
		return nil
	}
	if cur.UserID != p.Event.UserID {
		return domain.InvalidCause(domain.ErrUnauthorized, "user %d does not own wallet %s", p.Event.UserID, m.Wallet)
	}
	_, err = p.authorize(p.Event.UserID)
	return err
}

func deleteDashboardWallet(p *Params) (*Result, error) {
	m, err := decodeDashboardWallet(p)
	if err != nil {
		return nil, err
	}
	cur := p.World.DashboardWalletUser(m.Wallet)
	if !live(cur) {
		return noop()
	}
	return &Result{Records: []schema.Record{p.tombstone(cur.Clone())}}, nil
}
