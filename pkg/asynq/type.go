package asynq

const (
	ClaimSyncTask      = "claim:sync"
	AvgLevelSweepTask  = "incentive:avg_level_sweep"
	RatingSnapshotTask = "rating:snapshot"
	LedgerVerifyTask   = "ledger:verify_chain"
)

type ClaimSyncPayload struct {
	ClaimID int64 `json:"claim_id"`
}

type AvgLevelSweepPayload struct {
	AsOf string `json:"as_of"` // RFC3339, empty means now
}

type RatingSnapshotPayload struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type LedgerVerifyPayload struct {
	UserID int64 `json:"user_id"` // zero means all users
}
