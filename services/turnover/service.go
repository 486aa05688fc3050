package turnover

import (
	"context"
	"time"

	"turnover-rewards/pkg/errutil"
	"turnover-rewards/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	records repository.Repository[TurnoverRecord]
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

		records: repository.ProvideStore[TurnoverRecord](p.DB),
	}
}

// Upsert stores a batch of imported rows and returns the ones that were
// newly inserted. Rows already present (same natural key) are skipped
// silently; callers use the inserted set to decide who to notify.
func (s *Service) Upsert(ctx context.Context, rows []UpsertRow) ([]TurnoverRecord, error) {
	inserted := make([]TurnoverRecord, 0, len(rows))

	for _, row := range rows {
		if row.SellerID == "" || row.BuyerID == "" {
			return nil, errutil.ValidationFailed("seller_id and buyer_id are required", nil)
		}

		record := TurnoverRecord{
			ID:            s.node.Generate().Int64(),
			Period:        row.Period,
			OperationType: row.OperationType,
			Product:       row.Product,
			SellerID:      row.SellerID,
			BuyerID:       row.BuyerID,
			SellerName:    row.SellerName,
			BuyerName:     row.BuyerName,
			Volume:        row.Volume,
			VolumePartial: row.VolumePartial,
			CreatedAt:     time.Now(),
		}

		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&record)
		if res.Error != nil {
			return nil, res.Error
		}

		if res.RowsAffected > 0 {
			inserted = append(inserted, record)
		}
	}

	zap.L().Info("turnover batch upserted",
		zap.Int("received", len(rows)),
		zap.Int("inserted", len(inserted)),
	)

	return inserted, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*TurnoverRecord, error) {
	record, err := s.records.FindOne(ctx, &TurnoverRecord{ID: id})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errutil.NotFound("turnover record not found", nil)
	}
	return record, nil
}

// HasEarlierSale reports whether any of the given sellers sold to the buyer
// strictly before the given period. Used by the first-buyer bonus check.
func (s *Service) HasEarlierSale(ctx context.Context, buyerID string, sellerIDs []string, before time.Time) (bool, error) {
	if len(sellerIDs) == 0 {
		return false, nil
	}

	var count int64
	err := s.db.WithContext(ctx).Model(&TurnoverRecord{}).
		Where("buyer_id = ? AND seller_id IN ? AND period < ?", buyerID, sellerIDs, before).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// Unclaimed lists rows for the given sellers that no claim references yet.
func (s *Service) Unclaimed(ctx context.Context, sellerIDs []string) ([]TurnoverRecord, error) {
	if len(sellerIDs) == 0 {
		return nil, nil
	}

	var out []TurnoverRecord
	err := s.db.WithContext(ctx).Model(&TurnoverRecord{}).
		Where("seller_id IN ?", sellerIDs).
		Where("NOT EXISTS (SELECT 1 FROM sales_claims WHERE sales_claims.turnover_id = turnover_records.id)").
		Order("period ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}

	return out, nil
}
