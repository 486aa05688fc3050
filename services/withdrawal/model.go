package withdrawal

import "time"

const (
	StatusRequested = "requested"
	StatusPaid      = "paid"
	StatusDeclined  = "declined"
)

// WithdrawalRequest is created together with its debit ledger entry in one
// transaction; the entry is what moves the balance, the request only tracks
// payout processing.
type WithdrawalRequest struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	UserID      int64     `gorm:"column:user_id;index"`
	Amount      float64   `gorm:"column:amount"`
	Requisites  string    `gorm:"column:requisites"`
	Status      string    `gorm:"column:status"`
	RequestedAt time.Time `gorm:"column:requested_at"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}
