package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// CIDBlacklist defines the interface for metadata CID blacklist lookups
//
//go:generate mockgen -source=blacklist.go -destination=../mocks/blacklist.go -package=mocks -mock_names=CIDBlacklist=MockCIDBlacklist
type CIDBlacklist interface {
	// IsBlacklisted checks if a metadata CID is blacklisted
	IsBlacklisted(cid string) bool

	// Reload re-reads the blacklist file, keeping the previous list on failure
	Reload() error
}

// BlacklistData represents the structure of the blacklist.json file
type BlacklistData struct {
	CIDs []string `json:"cids"`
}

// cidBlacklist is the internal implementation of CIDBlacklist
type cidBlacklist struct {
	path string

	mu   sync.RWMutex
	cids map[string]bool
}

// LoadBlacklist loads the blacklist registry from a JSON file.
// An empty path yields an empty blacklist.
func LoadBlacklist(filePath string) (CIDBlacklist, error) {
	bl := &cidBlacklist{
		path: filePath,
		cids: make(map[string]bool),
	}
	if err := bl.Reload(); err != nil {
		return nil, err
	}
	return bl, nil
}

// IsBlacklisted checks if a metadata CID is blacklisted
func (b *cidBlacklist) IsBlacklisted(cid string) bool {
	if b == nil || cid == "" {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cids[normalizeCID(cid)]
}

// Reload re-reads the blacklist file
func (b *cidBlacklist) Reload() error {
	if b.path == "" {
		return nil
	}

	data, err := os.ReadFile(b.path) //nolint:gosec,G304 // This should be a trusted file
	if err != nil {
		return fmt.Errorf("failed to read blacklist file: %w", err)
	}

	var blacklistData BlacklistData
	if err := json.Unmarshal(data, &blacklistData); err != nil {
		return fmt.Errorf("failed to parse blacklist JSON: %w", err)
	}

	// Build lookup map
	cids := make(map[string]bool, len(blacklistData.CIDs))
	for _, cid := range blacklistData.CIDs {
		if cid = normalizeCID(cid); cid != "" {
			cids[cid] = true
		}
	}

	b.mu.Lock()
	b.cids = cids
	b.mu.Unlock()
	return nil
}

// normalizeCID strips an ipfs:// scheme and surrounding whitespace.
// CIDv1 base32 strings are case-insensitive; CIDv0 (Qm...) is not, so case is kept.
func normalizeCID(cid string) string {
	cid = strings.TrimSpace(cid)
	cid = strings.TrimPrefix(cid, "ipfs://")
	if strings.HasPrefix(cid, "bafy") || strings.HasPrefix(cid, "BAFY") {
		return strings.ToLower(cid)
	}
	return cid
}
