package dispute

import "time"

const (
	StatusOpen     = "open"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusCanceled = "canceled"
)

// SaleDispute challenges a claim's ownership. At most one open dispute may
// exist per claim; the guard lives on the claim row, not here.
type SaleDispute struct {
	ID              int64      `gorm:"column:id;primaryKey"`
	ClaimID         int64      `gorm:"column:claim_id;index"`
	InitiatorUserID int64      `gorm:"column:initiator_user_id"`
	DefendantUserID int64      `gorm:"column:defendant_user_id"`
	ModeratorUserID int64      `gorm:"column:moderator_user_id"`
	Status          string     `gorm:"column:status"`
	Comment         string     `gorm:"column:comment"`
	OpenedAt        time.Time  `gorm:"column:opened_at"`
	ResolvedAt      *time.Time `gorm:"column:resolved_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}
