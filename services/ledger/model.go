package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	KindEarn     = "earn"
	KindWithdraw = "withdraw"
	KindAdjust   = "adjust"

	GenesisHash = "GENESIS"
)

// LedgerEntry is append-only. Balances are derived by aggregation, never
// stored; every balance-affecting rule must funnel through an entry.
// Entries of one user form a sha256 hash chain for tamper evidence.
type LedgerEntry struct {
	ID                int64          `gorm:"column:id;primaryKey"`
	UserID            int64          `gorm:"column:user_id;index"`
	Kind              string         `gorm:"column:kind"`
	StageCode         string         `gorm:"column:stage_code"`
	Amount            float64        `gorm:"column:amount"`
	AvailableDelta    float64        `gorm:"column:available_delta"`
	RelatedEntityType string         `gorm:"column:related_entity_type"`
	RelatedEntityID   int64          `gorm:"column:related_entity_id"`
	Description       string         `gorm:"column:description"`
	PreviousHash      string         `gorm:"column:previous_hash"`
	Hash              string         `gorm:"column:hash"`
	Metadata          datatypes.JSON `gorm:"column:metadata"`
	CreatedAt         time.Time      `gorm:"column:created_at"`
}

func (m *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":                  strconv.FormatInt(m.ID, 10),
		"user_id":             strconv.FormatInt(m.UserID, 10),
		"kind":                m.Kind,
		"stage_code":          m.StageCode,
		"amount":              strconv.FormatFloat(m.Amount, 'f', 9, 64),
		"available_delta":     strconv.FormatFloat(m.AvailableDelta, 'f', 9, 64),
		"related_entity_type": m.RelatedEntityType,
		"related_entity_id":   strconv.FormatInt(m.RelatedEntityID, 10),
		"created_at":          m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":       m.PreviousHash,
	}
}

func (m *LedgerEntry) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Balances is the derived view of one user's money. Frozen is not a ledger
// aggregate: it is the summed volume of claims the user owns that sit under
// an open dispute.
type Balances struct {
	Available float64 `json:"available"`
	Frozen    float64 `json:"frozen"`
	Earned    float64 `json:"earned"`
	Withdrawn float64 `json:"withdrawn"`
}

type EntryParams struct {
	UserID            int64
	Kind              string
	StageCode         string
	Amount            float64
	RelatedEntityType string
	RelatedEntityID   int64
	Description       string
	Metadata          datatypes.JSON
}
