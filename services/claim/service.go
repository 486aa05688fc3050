package claim

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	taskname "turnover-rewards/pkg/asynq"
	"turnover-rewards/pkg/errutil"
	"turnover-rewards/pkg/repository"
	"turnover-rewards/services/member"
	"turnover-rewards/services/turnover"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Syncer re-runs incentive reconciliation for one claim. Implemented by the
// incentive engine; claims only trigger it after their own write committed.
type Syncer interface {
	SyncClaim(ctx context.Context, claimID int64) error
}

type SyncerFunc func(ctx context.Context, claimID int64) error

func (f SyncerFunc) SyncClaim(ctx context.Context, claimID int64) error {
	return f(ctx, claimID)
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	syncer Syncer
	tasks  *asynq.Client

	claims  repository.Repository[SalesClaim]
	records repository.Repository[turnover.TurnoverRecord]
	members repository.Repository[member.Member]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Syncer Syncer        `optional:"true"`
	Tasks  *asynq.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		syncer: p.Syncer,
		tasks:  p.Tasks,

		claims:  repository.ProvideStore[SalesClaim](p.DB),
		records: repository.ProvideStore[turnover.TurnoverRecord](p.DB),
		members: repository.ProvideStore[member.Member](p.DB),
	}
}

// Claim creates a SalesClaim for the turnover row. Losing the uniqueness
// race surfaces as a conflict, never as a raw storage error.
func (s *Service) Claim(ctx context.Context, turnoverID, userID int64) (*SalesClaim, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	record, err := s.records.FindOne(ctx, &turnover.TurnoverRecord{ID: turnoverID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errutil.NotFound("turnover record not found", nil)
	}

	m, err := s.members.FindOne(ctx, &member.Member{ID: userID})
	if err != nil {
		return nil, err
	}
	if m == nil || m.Status != member.StatusActive {
		return nil, errutil.ValidationFailed("claimer is not an active member", nil)
	}

	now := time.Now()
	c := &SalesClaim{
		ID:            s.node.Generate().Int64(),
		TurnoverID:    turnoverID,
		OwnerUserID:   userID,
		GroupID:       m.GroupID,
		OrgID:         m.OrgID,
		ClaimedAt:     now,
		DisputeStatus: DisputeNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.claims.Create(ctx, c); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("turnover record already claimed", err)
		}
		return nil, err
	}

	zap.L().Info("claim created",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Int64("claim_id", c.ID),
		zap.Int64("turnover_id", turnoverID),
		zap.Int64("owner_user_id", userID),
	)

	s.triggerSync(ctx, c.ID)

	return c, nil
}

// ClaimBatch claims every listed turnover row for the user. Rows already
// claimed by someone else are reported, not rolled back.
func (s *Service) ClaimBatch(ctx context.Context, turnoverIDs []int64, userID int64) (*BatchResult, error) {
	if len(turnoverIDs) == 0 {
		return nil, errutil.ValidationFailed("no turnover records given", nil)
	}

	result := &BatchResult{}
	for _, id := range turnoverIDs {
		c, err := s.Claim(ctx, id, userID)
		if err != nil {
			if errutil.IsStatus(err, errutil.StatusConflict) {
				result.AlreadyClaimed = append(result.AlreadyClaimed, id)
				continue
			}
			return nil, err
		}
		result.Claimed = append(result.Claimed, *c)
	}

	return result, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*SalesClaim, error) {
	c, err := s.claims.FindOne(ctx, &SalesClaim{ID: id})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("claim not found", nil)
	}
	return c, nil
}

func (s *Service) ListByOwner(ctx context.Context, userID int64) ([]SalesClaim, error) {
	return s.claims.Find(ctx, &SalesClaim{OwnerUserID: userID})
}

// triggerSync runs after the claim committed. A sync failure is not fatal:
// the claim is queued for a retry, and the nightly sweep re-runs
// reconciliation for every claim regardless.
func (s *Service) triggerSync(ctx context.Context, claimID int64) {
	if s.syncer != nil {
		err := s.syncer.SyncClaim(ctx, claimID)
		if err == nil {
			return
		}
		zap.L().Warn("claim sync failed",
			zap.Int64("claim_id", claimID),
			zap.Error(err),
		)
	}

	if s.tasks == nil {
		return
	}

	payload, err := json.Marshal(taskname.ClaimSyncPayload{ClaimID: claimID})
	if err != nil {
		return
	}
	if _, err := s.tasks.EnqueueContext(ctx, asynq.NewTask(taskname.ClaimSyncTask, payload)); err != nil {
		zap.L().Warn("claim sync retry enqueue failed, sweep will catch up",
			zap.Int64("claim_id", claimID),
			zap.Error(err),
		)
	}
}
