package claim

import "time"

const (
	DisputeNone = "none"
	DisputeOpen = "open"
)

// SalesClaim binds exactly one user to a turnover row. The unique index on
// TurnoverID is what closes the claim race, not any pre-check.
// OwnerUserID changes only through dispute approval.
type SalesClaim struct {
	ID            int64     `gorm:"column:id;primaryKey"`
	TurnoverID    int64     `gorm:"column:turnover_id;uniqueIndex"`
	OwnerUserID   int64     `gorm:"column:owner_user_id;index"`
	GroupID       int64     `gorm:"column:group_id;index"`
	OrgID         int64     `gorm:"column:org_id"`
	ClaimedAt     time.Time `gorm:"column:claimed_at"`
	DisputeStatus string    `gorm:"column:dispute_status"`
	DisputeID     *int64    `gorm:"column:dispute_id"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

// BatchResult reports per-row outcomes of a batch claim. Rows lost to a
// concurrent claimer land in AlreadyClaimed; the rest of the batch is not
// rolled back.
type BatchResult struct {
	Claimed        []SalesClaim `json:"claimed"`
	AlreadyClaimed []int64      `json:"already_claimed"`
}
