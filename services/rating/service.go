package rating

import (
	"context"
	"errors"
	"fmt"
	"time"

	"turnover-rewards/pkg/db/option"
	"turnover-rewards/pkg/errutil"
	"turnover-rewards/pkg/repository"
	"turnover-rewards/services/claim"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	snapshots repository.Repository[RatingSnapshot]
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

		snapshots: repository.ProvideStore[RatingSnapshot](p.DB),
	}
}

// Ranking returns the leaderboard for a period. groupID 0 means global.
// Closed months that have been snapshotted are served from the snapshot;
// everything else is computed live from undisputed claims.
func (s *Service) Ranking(ctx context.Context, periodKey string, groupID int64) ([]Row, error) {
	from, to, err := periodWindow(periodKey)
	if err != nil {
		return nil, err
	}

	if periodKey != PeriodAll && !to.After(time.Now()) {
		rows, err := s.fromSnapshot(ctx, periodKey, groupID)
		if err != nil {
			return nil, err
		}
		if rows != nil {
			return rows, nil
		}
	}

	return s.live(ctx, from, to, groupID)
}

// Snapshot persists the ranking of a closed month. Snapshots are written
// once: a month that already has rows is left untouched.
func (s *Service) Snapshot(ctx context.Context, year int, month time.Month) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	if to.After(time.Now()) {
		return errutil.ValidationFailed("month is not closed yet", nil)
	}
	periodKey := from.Format("2006-01")

	existing, err := s.snapshots.Count(ctx, &RatingSnapshot{PeriodKey: periodKey})
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	global, err := s.live(ctx, from, to, 0)
	if err != nil {
		return err
	}
	if len(global) == 0 {
		return nil
	}

	groupRanks := make(map[int64]int)
	now := time.Now()
	records := make([]RatingSnapshot, 0, len(global))
	for _, row := range global {
		groupRanks[row.GroupID]++
		records = append(records, RatingSnapshot{
			ID:         s.node.Generate().Int64(),
			PeriodKey:  periodKey,
			UserID:     row.UserID,
			GroupID:    row.GroupID,
			Volume:     row.Volume,
			GlobalRank: row.Rank,
			GroupRank:  groupRanks[row.GroupID],
			CreatedAt:  now,
		})
	}

	if err := s.snapshots.BatchCreate(ctx, records); err != nil {
		// a concurrent snapshot of the same month already won
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}

	zap.L().Info("rating snapshot written",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("period_key", periodKey),
		zap.Int("rows", len(records)),
	)
	return nil
}

func (s *Service) fromSnapshot(ctx context.Context, periodKey string, groupID int64) ([]Row, error) {
	filter := &RatingSnapshot{PeriodKey: periodKey}
	if groupID != 0 {
		filter.GroupID = groupID
	}

	sortBy := "global_rank"
	if groupID != 0 {
		sortBy = "group_rank"
	}
	records, err := s.snapshots.Find(ctx, filter,
		option.WithSortBy(option.QuerySortBy{
			SortBy:  sortBy,
			OrderBy: "asc",
			Allow:   map[string]bool{"global_rank": true, "group_rank": true},
		}),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rank := r.GlobalRank
		if groupID != 0 {
			rank = r.GroupRank
		}
		rows = append(rows, Row{UserID: r.UserID, GroupID: r.GroupID, Volume: r.Volume, Rank: rank})
	}
	return rows, nil
}

func (s *Service) live(ctx context.Context, from, to time.Time, groupID int64) ([]Row, error) {
	query := s.db.WithContext(ctx).
		Table("sales_claims").
		Select("sales_claims.owner_user_id AS user_id, MAX(sales_claims.group_id) AS group_id, COALESCE(SUM(turnover_records.volume), 0) AS volume").
		Joins("JOIN turnover_records ON turnover_records.id = sales_claims.turnover_id").
		Where("sales_claims.dispute_status = ?", claim.DisputeNone)
	if !from.IsZero() {
		query = query.Where("turnover_records.period >= ? AND turnover_records.period < ?", from, to)
	}
	if groupID != 0 {
		query = query.Where("sales_claims.group_id = ?", groupID)
	}

	var rows []Row
	err := query.
		Group("sales_claims.owner_user_id").
		Order("volume DESC, user_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

func periodWindow(periodKey string) (time.Time, time.Time, error) {
	if periodKey == PeriodAll {
		return time.Time{}, time.Time{}, nil
	}
	from, err := time.ParseInLocation("2006-01", periodKey, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, errutil.ValidationFailed(fmt.Sprintf("invalid period key %q", periodKey), err)
	}
	return from, from.AddDate(0, 1, 0), nil
}
