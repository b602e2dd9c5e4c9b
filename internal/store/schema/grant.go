package schema

import (
	"github.com/feral-file/ff-entity-indexer/internal/domain"
)

// Grant represents the grants table. A grant lets GranteeAddress sign
// transactions on behalf of UserID once it is approved and not revoked.
type Grant struct {
	Versioned
	// GranteeAddress is the lowercased address of the delegate
	GranteeAddress string `gorm:"column:grantee_address;type:text;not null;uniqueIndex:idx_grants_current,priority:1,where:is_current = true"`
	// UserID is the grantor
	UserID     int64 `gorm:"column:user_id;not null;uniqueIndex:idx_grants_current,priority:2"`
	IsApproved bool  `gorm:"column:is_approved;not null"`
	IsRevoked  bool  `gorm:"column:is_revoked;not null"`
}

func (Grant) TableName() string {
	return "grants"
}

func (g *Grant) EntityType() domain.EntityType {
	return domain.EntityTypeGrant
}

func (g *Grant) EntityKey() domain.EntityKey {
	return domain.NewEntityKey(domain.EntityTypeGrant, g.GranteeAddress, g.UserID)
}

func (g *Grant) Clone() Record {
	c := *g
	return &c
}

// IsActive reports whether the grant currently authorizes the grantee
func (g *Grant) IsActive() bool {
	return g.IsApproved && !g.IsRevoked && !g.IsDelete
}

// DashboardWalletUser attaches an external wallet to a user's dashboard
type DashboardWalletUser struct {
	Versioned
	// Wallet is the lowercased attached wallet
	Wallet string `gorm:"column:wallet;type:text;not null;uniqueIndex:idx_dashboard_wallet_users_current,where:is_current = true"`
	UserID int64  `gorm:"column:user_id;not null;index"`
}

func (DashboardWalletUser) TableName() string {
	return "dashboard_wallet_users"
}

func (d *DashboardWalletUser) EntityType() domain.EntityType {
	return domain.EntityTypeDashboardWalletUser
}

func (d *DashboardWalletUser) EntityKey() domain.EntityKey {
	return domain.EntityKey{Type: domain.EntityTypeDashboardWalletUser, ID: d.Wallet}
}

func (d *DashboardWalletUser) Clone() Record {
	c := *d
	return &c
}
