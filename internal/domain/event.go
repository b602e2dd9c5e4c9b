package domain

import (
	"encoding/json"
	"time"
)

// RawEvent is an undecoded ManageEntity log as emitted by the EntityManager contract
type RawEvent struct {
	EntityID    int64  `json:"_entityId"`
	EntityType  string `json:"_entityType"`
	UserID      int64  `json:"_userId"`
	Action      string `json:"_action"`
	Metadata    string `json:"_metadata"`
	Signer      string `json:"_signer"`
	BlockHash   string `json:"blockHash"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
	LogIndex    uint   `json:"logIndex"`
}

// Transaction groups the raw events of one transaction in a block
type Transaction struct {
	Hash   string
	Index  uint
	Events []RawEvent
}

// Block is one chain block with its EntityManager transactions in chain order
type Block struct {
	Number       uint64
	Hash         string
	Timestamp    time.Time
	Transactions []Transaction
}

// ManageEntityEvent is a decoded ManageEntity log. It only lives for one
// orchestration pass.
type ManageEntityEvent struct {
	EntityID       int64
	EntityType     EntityType
	UserID         int64
	Action         Action
	MetadataCID    string
	Metadata       json.RawMessage
	SignerAddress  string
	BlockNumber    uint64
	BlockTimestamp time.Time
	BlockHash      string
	TxHash         string
	TxIndex        uint
}

// BlockIndexed is published after a block has been committed
type BlockIndexed struct {
	BlockNumber      uint64              `json:"block_number"`
	BlockHash        string              `json:"block_hash"`
	NumChanges       int                 `json:"num_changes"`
	ChangedEntityIDs map[string][]string `json:"changed_entity_ids"`
	IndexedAt        time.Time           `json:"indexed_at"`
}

// PlayRecorded is consumed from the plays stream. UserID is absent for
// anonymous listeners.
type PlayRecorded struct {
	Signature string    `json:"signature"`
	TrackID   int64     `json:"track_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Slot      uint64    `json:"slot"`
	PlayedAt  time.Time `json:"played_at"`
}
