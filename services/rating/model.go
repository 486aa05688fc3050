package rating

import "time"

// PeriodAll selects the all-time ranking; any other period key is a month
// in YYYY-MM form.
const PeriodAll = "all"

// RatingSnapshot is the immutable record of a closed month's ranking.
type RatingSnapshot struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	PeriodKey  string    `gorm:"column:period_key;uniqueIndex:idx_rating_snapshot"`
	UserID     int64     `gorm:"column:user_id;uniqueIndex:idx_rating_snapshot"`
	GroupID    int64     `gorm:"column:group_id;index"`
	Volume     float64   `gorm:"column:volume"`
	GlobalRank int       `gorm:"column:global_rank"`
	GroupRank  int       `gorm:"column:group_rank"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// Row is one line of a ranking as served to callers.
type Row struct {
	UserID  int64   `json:"user_id"`
	GroupID int64   `json:"group_id"`
	Volume  float64 `json:"volume"`
	Rank    int     `json:"rank"`
}
