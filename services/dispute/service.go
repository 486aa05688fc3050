package dispute

import (
	"context"
	"encoding/json"
	"time"

	taskname "turnover-rewards/pkg/asynq"
	"turnover-rewards/pkg/db/option"
	"turnover-rewards/pkg/errutil"
	"turnover-rewards/pkg/repository"
	"turnover-rewards/services/claim"
	"turnover-rewards/services/member"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Syncer re-runs incentive reconciliation for one claim after a dispute
// transition committed.
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

	disputes repository.Repository[SaleDispute]
	claims   repository.Repository[claim.SalesClaim]
	members  repository.Repository[member.Member]
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

		disputes: repository.ProvideStore[SaleDispute](p.DB),
		claims:   repository.ProvideStore[claim.SalesClaim](p.DB),
		members:  repository.ProvideStore[member.Member](p.DB),
	}
}

// Open starts a dispute against a claim. The open/none flip on the claim row
// is a single guarded update; its affected-row count is the only source of
// truth for the "at most one open dispute" invariant.
func (s *Service) Open(ctx context.Context, claimID, initiatorID int64) (*SaleDispute, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	cl, err := s.claims.FindOne(ctx, &claim.SalesClaim{ID: claimID})
	if err != nil {
		return nil, err
	}
	if cl == nil {
		return nil, errutil.NotFound("claim not found", nil)
	}

	if cl.OwnerUserID == initiatorID {
		return nil, errutil.ValidationFailed("cannot dispute own claim", nil)
	}

	initiator, err := s.members.FindOne(ctx, &member.Member{ID: initiatorID})
	if err != nil {
		return nil, err
	}
	if initiator == nil || initiator.Status != member.StatusActive {
		return nil, errutil.ValidationFailed("initiator is not an active member", nil)
	}

	moderatorID, err := s.resolveModerator(ctx, initiator, cl.GroupID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	d := &SaleDispute{
		ID:              s.node.Generate().Int64(),
		ClaimID:         claimID,
		InitiatorUserID: initiatorID,
		DefendantUserID: cl.OwnerUserID,
		ModeratorUserID: moderatorID,
		Status:          StatusOpen,
		OpenedAt:        now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.disputes.WithTrx(tx).Create(ctx, d); err != nil {
			return err
		}

		res := tx.Model(&claim.SalesClaim{}).
			Where("id = ? AND dispute_status = ?", claimID, claim.DisputeNone).
			Updates(map[string]any{
				"dispute_status": claim.DisputeOpen,
				"dispute_id":     d.ID,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("dispute already open for claim", nil)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("dispute opened",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Int64("dispute_id", d.ID),
		zap.Int64("claim_id", claimID),
		zap.Int64("moderator_user_id", moderatorID),
	)

	s.triggerSync(ctx, claimID)

	return d, nil
}

// Cancel is permitted only to the original initiator while the dispute is
// still open.
func (s *Service) Cancel(ctx context.Context, disputeID, initiatorID int64) error {
	d, err := s.get(ctx, disputeID)
	if err != nil {
		return err
	}

	if d.InitiatorUserID != initiatorID {
		return errutil.Forbidden("only the initiator may cancel the dispute", nil)
	}

	if err := s.close(ctx, d, StatusCanceled, nil); err != nil {
		return err
	}

	s.triggerSync(ctx, d.ClaimID)
	return nil
}

// Resolve is permitted only to the assigned moderator. Approval reassigns
// the claim to the initiator and refreshes its claimed_at.
func (s *Service) Resolve(ctx context.Context, disputeID, moderatorID int64, approve bool) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	d, err := s.get(ctx, disputeID)
	if err != nil {
		return err
	}

	if d.ModeratorUserID != moderatorID {
		return errutil.Forbidden("only the assigned moderator may resolve the dispute", nil)
	}

	status := StatusRejected
	var newOwner *int64
	if approve {
		status = StatusApproved
		newOwner = &d.InitiatorUserID
	}

	if err := s.close(ctx, d, status, newOwner); err != nil {
		return err
	}

	zap.L().Info("dispute resolved",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Int64("dispute_id", d.ID),
		zap.Int64("claim_id", d.ClaimID),
		zap.Bool("approved", approve),
	)

	s.triggerSync(ctx, d.ClaimID)
	return nil
}

func (s *Service) Get(ctx context.Context, disputeID int64) (*SaleDispute, error) {
	return s.get(ctx, disputeID)
}

func (s *Service) get(ctx context.Context, disputeID int64) (*SaleDispute, error) {
	d, err := s.disputes.FindOne(ctx, &SaleDispute{ID: disputeID})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, errutil.NotFound("dispute not found", nil)
	}
	return d, nil
}

// close moves an open dispute to a terminal status and releases the claim.
// When newOwner is non-nil the claim is reassigned.
func (s *Service) close(ctx context.Context, d *SaleDispute, status string, newOwner *int64) error {
	now := time.Now()

	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SaleDispute{}).
			Where("id = ? AND status = ?", d.ID, StatusOpen).
			Updates(map[string]any{
				"status":      status,
				"resolved_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("dispute is not open", nil)
		}

		updates := map[string]any{
			"dispute_status": claim.DisputeNone,
			"dispute_id":     nil,
			"updated_at":     now,
		}
		if newOwner != nil {
			updates["owner_user_id"] = *newOwner
			updates["claimed_at"] = now
		}

		return tx.Model(&claim.SalesClaim{}).
			Where("id = ?", d.ClaimID).
			Updates(updates).Error
	})
}

// resolveModerator applies the moderation policy: a team-lead moderates
// their own dispute, anyone else gets the first active team-lead of the
// claim's group by registration order.
func (s *Service) resolveModerator(ctx context.Context, initiator *member.Member, groupID int64) (int64, error) {
	if initiator.Role == member.RoleTeamLead {
		return initiator.ID, nil
	}

	lead, err := s.members.FindOne(ctx, &member.Member{
		GroupID: groupID,
		Role:    member.RoleTeamLead,
		Status:  member.StatusActive,
	}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "registered_at",
		OrderBy: "asc",
		Allow:   map[string]bool{"registered_at": true},
	}))
	if err != nil {
		return 0, err
	}
	if lead == nil {
		return 0, errutil.Conflict("no moderator available for group", nil)
	}

	return lead.ID, nil
}

func (s *Service) triggerSync(ctx context.Context, claimID int64) {
	if s.syncer != nil {
		err := s.syncer.SyncClaim(ctx, claimID)
		if err == nil {
			return
		}
		zap.L().Warn("dispute sync failed",
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
		zap.L().Warn("dispute sync retry enqueue failed, sweep will catch up",
			zap.Int64("claim_id", claimID),
			zap.Error(err),
		)
	}
}
