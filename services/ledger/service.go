package ledger

import (
	"context"
	"fmt"
	"time"

	"turnover-rewards/pkg/db/option"
	"turnover-rewards/pkg/errutil"
	"turnover-rewards/pkg/repository"
	"turnover-rewards/services/claim"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	entries repository.Repository[LedgerEntry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		entries: repository.ProvideStore[LedgerEntry](p.DB),
	}
}

// Append posts one entry. When tx is non-nil the entry joins the caller's
// transaction; the user's last entry is read under a row lock so the hash
// chain cannot fork under concurrent writers.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, p EntryParams) (*LedgerEntry, error) {
	switch p.Kind {
	case KindEarn, KindWithdraw, KindAdjust:
	default:
		return nil, errutil.ValidationFailed("unsupported ledger entry kind", nil)
	}

	run := func(tx *gorm.DB) (*LedgerEntry, error) {
		entriesTx := s.entries.WithTrx(tx)

		lastEntry, err := entriesTx.FindOne(ctx, &LedgerEntry{UserID: p.UserID},
			option.WithSortBy(option.QuerySortBy{
				SortBy:  "id",
				OrderBy: "desc",
				Allow:   map[string]bool{"id": true},
			}),
			option.WithLockingUpdate(),
		)
		if err != nil {
			return nil, err
		}

		previousHash := GenesisHash
		if lastEntry != nil {
			previousHash = lastEntry.Hash
		}

		entry := &LedgerEntry{
			ID:                s.node.Generate().Int64(),
			UserID:            p.UserID,
			Kind:              p.Kind,
			StageCode:         p.StageCode,
			Amount:            p.Amount,
			AvailableDelta:    p.Amount,
			RelatedEntityType: p.RelatedEntityType,
			RelatedEntityID:   p.RelatedEntityID,
			Description:       p.Description,
			PreviousHash:      previousHash,
			Metadata:          p.Metadata,
			CreatedAt:         time.Now(),
		}
		entry.Hash = entry.GenerateHash()

		if err := entriesTx.Create(ctx, entry); err != nil {
			return nil, err
		}

		return entry, nil
	}

	if tx != nil {
		return run(tx)
	}

	var entry *LedgerEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = run(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Balances(ctx context.Context, userID int64) (*Balances, error) {
	return s.BalancesTx(ctx, s.db, userID)
}

// BalancesTx computes the derived balances on the given handle, so the
// withdrawal gate can evaluate them inside its exclusive transaction.
func (s *Service) BalancesTx(ctx context.Context, tx *gorm.DB, userID int64) (*Balances, error) {
	b := &Balances{}

	err := tx.WithContext(ctx).Model(&LedgerEntry{}).
		Select("COALESCE(SUM(available_delta), 0)").
		Where("user_id = ?", userID).
		Scan(&b.Available).Error
	if err != nil {
		return nil, err
	}

	err = tx.WithContext(ctx).Model(&LedgerEntry{}).
		Select("COALESCE(SUM(available_delta), 0)").
		Where("user_id = ? AND kind IN ?", userID, []string{KindEarn, KindAdjust}).
		Scan(&b.Earned).Error
	if err != nil {
		return nil, err
	}

	err = tx.WithContext(ctx).Model(&LedgerEntry{}).
		Select("COALESCE(-SUM(available_delta), 0)").
		Where("user_id = ? AND kind = ?", userID, KindWithdraw).
		Scan(&b.Withdrawn).Error
	if err != nil {
		return nil, err
	}

	frozen, err := s.frozenTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	b.Frozen = frozen

	return b, nil
}

// frozenTx sums the turnover volume of the user's claims under open dispute.
func (s *Service) frozenTx(ctx context.Context, tx *gorm.DB, userID int64) (float64, error) {
	var frozen float64
	err := tx.WithContext(ctx).Model(&claim.SalesClaim{}).
		Select("COALESCE(SUM(turnover_records.volume), 0)").
		Joins("JOIN turnover_records ON turnover_records.id = sales_claims.turnover_id").
		Where("sales_claims.owner_user_id = ? AND sales_claims.dispute_status = ?", userID, claim.DisputeOpen).
		Scan(&frozen).Error
	if err != nil {
		return 0, err
	}
	return frozen, nil
}

// StageBreakdown sums earn/adjust deltas per stage for entries created in
// [from, to).
func (s *Service) StageBreakdown(ctx context.Context, userID int64, from, to time.Time) (map[string]float64, error) {
	type row struct {
		StageCode string
		Total     float64
	}

	var rows []row
	err := s.db.WithContext(ctx).Model(&LedgerEntry{}).
		Select("stage_code, COALESCE(SUM(available_delta), 0) AS total").
		Where("user_id = ? AND kind IN ? AND created_at >= ? AND created_at < ?",
			userID, []string{KindEarn, KindAdjust}, from, to).
		Group("stage_code").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	breakdown := make(map[string]float64, len(rows))
	for _, r := range rows {
		breakdown[r.StageCode] = r.Total
	}
	return breakdown, nil
}

func (s *Service) Entries(ctx context.Context, userID int64, limit, offset int) ([]LedgerEntry, error) {
	return s.entries.Find(ctx, &LedgerEntry{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "desc",
			Allow:   map[string]bool{"id": true},
		}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}

// VerifyChain recomputes the user's hash chain from the genesis entry.
func (s *Service) VerifyChain(ctx context.Context, userID int64) error {
	entries, err := s.entries.Find(ctx, &LedgerEntry{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "asc",
			Allow:   map[string]bool{"id": true},
		}),
	)
	if err != nil {
		return err
	}

	previousHash := GenesisHash
	for i := range entries {
		entry := &entries[i]

		if entry.PreviousHash != previousHash {
			return errutil.Internal("ledger chain broken",
				fmt.Errorf("entry %d: previous_hash mismatch", entry.ID))
		}
		if entry.GenerateHash() != entry.Hash {
			return errutil.Internal("ledger chain broken",
				fmt.Errorf("entry %d: hash mismatch", entry.ID))
		}

		previousHash = entry.Hash
	}

	return nil
}

// VerifyAllChains walks every user that has at least one entry.
func (s *Service) VerifyAllChains(ctx context.Context) error {
	var userIDs []int64
	err := s.db.WithContext(ctx).Model(&LedgerEntry{}).
		Distinct("user_id").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return err
	}

	for _, userID := range userIDs {
		if err := s.VerifyChain(ctx, userID); err != nil {
			zap.L().Error("ledger chain verification failed",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			return err
		}
	}

	return nil
}
