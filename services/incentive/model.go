package incentive

import (
	"fmt"
	"time"
)

const (
	StagePool      = "pool_bonus"
	StageNewBuyer  = "new_buyer_bonus"
	StageSupertask = "supertask_bonus"
	StageAvgLevel  = "avg_level_bonus"

	// Epsilon is the tolerance for amount comparisons. Two awards whose
	// amounts differ by less are the same award.
	Epsilon = 1e-9
)

// StageAward is the idempotency marker of the sync engine: the last applied
// {owner, amount} for one (claim, stage) pair. The engine diffs freshly
// computed targets against it and posts only the delta to the ledger.
type StageAward struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	ClaimID     int64     `gorm:"column:claim_id;uniqueIndex:idx_stage_award"`
	StageCode   string    `gorm:"column:stage_code;uniqueIndex:idx_stage_award"`
	OwnerUserID int64     `gorm:"column:owner_user_id"`
	Amount      float64   `gorm:"column:amount"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// PoolWindow is the interval during which a group's claims earn the pool
// bonus. Seeded lazily from the group's creation time and program config.
type PoolWindow struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	GroupID     int64     `gorm:"column:group_id;uniqueIndex"`
	StartsAt    time.Time `gorm:"column:starts_at"`
	EndsAt      time.Time `gorm:"column:ends_at"`
	RatePerUnit float64   `gorm:"column:rate_per_unit"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// NewBuyerAward pins the first-buyer bonus of a (group, buyer) pair to one
// claim. The unique index guarantees a single holder.
type NewBuyerAward struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	GroupID   int64     `gorm:"column:group_id;uniqueIndex:idx_new_buyer"`
	BuyerID   string    `gorm:"column:buyer_id;uniqueIndex:idx_new_buyer"`
	ClaimID   int64     `gorm:"column:claim_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

const (
	TaskPending = "pending"
	TaskClosed  = "closed"

	CandidatePending        = "pending"
	CandidatePendingDispute = "pending_dispute"
	CandidateWon            = "won"
	CandidateLost           = "lost"
)

// Supertask is a bounty on sales to one buyer. Claims against that buyer
// compete as candidates; the task closes with exactly one winner.
type Supertask struct {
	ID            int64      `gorm:"column:id;primaryKey"`
	GroupID       int64      `gorm:"column:group_id;index"`
	BuyerID       string     `gorm:"column:buyer_id;index"`
	Title         string     `gorm:"column:title"`
	Reward        float64    `gorm:"column:reward"`
	Status        string     `gorm:"column:status"`
	WinnerClaimID *int64     `gorm:"column:winner_claim_id"`
	ClosedAt      *time.Time `gorm:"column:closed_at"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

type SupertaskCandidate struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	TaskID    int64     `gorm:"column:task_id;uniqueIndex:idx_supertask_candidate"`
	ClaimID   int64     `gorm:"column:claim_id;uniqueIndex:idx_supertask_candidate"`
	UserID    int64     `gorm:"column:user_id"`
	Status    string    `gorm:"column:status"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

const (
	LevelActive   = "active"
	LevelArchived = "archived"
)

// AvgLevel pays a one-time bonus when a user's claimed volume inside the
// level window reaches the target.
type AvgLevel struct {
	ID           int64     `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	TargetVolume float64   `gorm:"column:target_volume"`
	Bonus        float64   `gorm:"column:bonus"`
	StartsAt     time.Time `gorm:"column:starts_at"`
	EndsAt       time.Time `gorm:"column:ends_at"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// Period is the level's idempotency key component: awards are unique per
// (level, user, period key) and are never reversed.
func (l *AvgLevel) Period() string {
	return fmt.Sprintf("%s__%s",
		l.StartsAt.Format("2006-01-02"),
		l.EndsAt.Format("2006-01-02"),
	)
}

type AvgLevelAward struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	LevelID   int64     `gorm:"column:level_id;uniqueIndex:idx_avg_level_award"`
	UserID    int64     `gorm:"column:user_id;uniqueIndex:idx_avg_level_award"`
	PeriodKey string    `gorm:"column:period_key;uniqueIndex:idx_avg_level_award"`
	Amount    float64   `gorm:"column:amount"`
	CreatedAt time.Time `gorm:"column:created_at"`
}
