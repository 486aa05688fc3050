package incentive

import (
	"context"
	"math"
	"time"

	"turnover-rewards/pkg/config"
	"turnover-rewards/pkg/db/option"
	"turnover-rewards/pkg/errutil"
	"turnover-rewards/pkg/repository"
	"turnover-rewards/services/claim"
	"turnover-rewards/services/ledger"
	"turnover-rewards/services/member"
	"turnover-rewards/services/turnover"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	cfg    *config.Config
	ledger *ledger.Service
	locks  *claimLocks

	awards      repository.Repository[StageAward]
	windows     repository.Repository[PoolWindow]
	buyerAwards repository.Repository[NewBuyerAward]
	tasks       repository.Repository[Supertask]
	candidates  repository.Repository[SupertaskCandidate]
	levels      repository.Repository[AvgLevel]
	levelAwards repository.Repository[AvgLevelAward]
	claims      repository.Repository[claim.SalesClaim]
	records     repository.Repository[turnover.TurnoverRecord]
	groups      repository.Repository[member.CompanyGroup]
	orgs        repository.Repository[member.Organization]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		cfg:    p.Config,
		ledger: p.Ledger,
		locks:  newClaimLocks(),

		awards:      repository.ProvideStore[StageAward](p.DB),
		windows:     repository.ProvideStore[PoolWindow](p.DB),
		buyerAwards: repository.ProvideStore[NewBuyerAward](p.DB),
		tasks:       repository.ProvideStore[Supertask](p.DB),
		candidates:  repository.ProvideStore[SupertaskCandidate](p.DB),
		levels:      repository.ProvideStore[AvgLevel](p.DB),
		levelAwards: repository.ProvideStore[AvgLevelAward](p.DB),
		claims:      repository.ProvideStore[claim.SalesClaim](p.DB),
		records:     repository.ProvideStore[turnover.TurnoverRecord](p.DB),
		groups:      repository.ProvideStore[member.CompanyGroup](p.DB),
		orgs:        repository.ProvideStore[member.Organization](p.DB),
	}
}

// SyncClaim recomputes every stage award for one claim and reconciles the
// ledger to match. It is idempotent: a second run against unchanged facts
// posts nothing. Syncs of the same claim are serialized by a keyed lock in
// this process and by the row lock on the claim across processes; the whole
// reconciliation runs in one transaction, so a failed sync leaves the
// pre-sync state intact.
func (s *Service) SyncClaim(ctx context.Context, claimID int64) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	unlock := s.locks.lock(claimID)
	defer unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		cl, err := s.claims.WithTrx(tx).FindOne(ctx, &claim.SalesClaim{ID: claimID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if cl == nil {
			return errutil.NotFound("claim not found", nil)
		}

		record, err := s.records.WithTrx(tx).FindOne(ctx, &turnover.TurnoverRecord{ID: cl.TurnoverID})
		if err != nil {
			return err
		}
		if record == nil {
			return errutil.Internal("claim references a missing turnover record", nil)
		}

		target, err := s.poolTarget(ctx, tx, cl, record)
		if err != nil {
			return err
		}
		if err := s.applyStage(ctx, tx, cl.ID, StagePool, target); err != nil {
			return err
		}

		target, err = s.newBuyerTarget(ctx, tx, cl, record)
		if err != nil {
			return err
		}
		if err := s.applyStage(ctx, tx, cl.ID, StageNewBuyer, target); err != nil {
			return err
		}

		target, err = s.supertaskTarget(ctx, tx, cl, record)
		if err != nil {
			return err
		}
		if err := s.applyStage(ctx, tx, cl.ID, StageSupertask, target); err != nil {
			return err
		}

		return s.syncAvgLevels(ctx, tx, cl)
	})
	if err != nil {
		zap.L().Error("claim sync failed",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Int64("claim_id", claimID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// applyStage diffs the computed target against the StageAward row and posts
// the delta. The StageAward row always ends up reflecting the net effect of
// all entries posted for the (claim, stage) pair.
func (s *Service) applyStage(ctx context.Context, tx *gorm.DB, claimID int64, stageCode string, target AwardState) error {
	awardsTx := s.awards.WithTrx(tx)

	existing, err := awardsTx.FindOne(ctx, &StageAward{ClaimID: claimID, StageCode: stageCode},
		option.WithLockingUpdate())
	if err != nil {
		return err
	}

	var previous *AwardState
	if existing != nil {
		previous = &AwardState{OwnerUserID: existing.OwnerUserID, Amount: existing.Amount}
		if previous.Equal(target) {
			return nil
		}
	} else if math.Abs(target.Amount) < Epsilon {
		// nothing awarded and nothing to award: no marker row needed
		return nil
	}

	for _, op := range Reconcile(previous, target) {
		_, err := s.ledger.Append(ctx, tx, ledger.EntryParams{
			UserID:            op.UserID,
			Kind:              op.Kind,
			StageCode:         stageCode,
			Amount:            op.Amount,
			RelatedEntityType: "claim",
			RelatedEntityID:   claimID,
		})
		if err != nil {
			return err
		}
	}

	now := time.Now()
	if existing == nil {
		return awardsTx.Create(ctx, &StageAward{
			ID:          s.node.Generate().Int64(),
			ClaimID:     claimID,
			StageCode:   stageCode,
			OwnerUserID: target.OwnerUserID,
			Amount:      target.Amount,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return awardsTx.Update(ctx, existing.ID, map[string]any{
		"owner_user_id": target.OwnerUserID,
		"amount":        target.Amount,
		"updated_at":    now,
	})
}

// SyncAll re-runs reconciliation for every claim. Individual failures are
// logged and skipped; the sweep is idempotent and re-run nightly.
func (s *Service) SyncAll(ctx context.Context) error {
	var claimIDs []int64
	err := s.db.WithContext(ctx).Model(&claim.SalesClaim{}).
		Order("id ASC").
		Pluck("id", &claimIDs).Error
	if err != nil {
		return err
	}

	start := time.Now()
	failed := 0
	for _, id := range claimIDs {
		if err := s.SyncClaim(ctx, id); err != nil {
			failed++
		}
	}

	zap.L().Info("full re-sync sweep finished",
		zap.Int("claims", len(claimIDs)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

type CreateSupertaskParams struct {
	GroupID int64
	BuyerID string
	Title   string
	Reward  float64
}

func (s *Service) CreateSupertask(ctx context.Context, p CreateSupertaskParams) (*Supertask, error) {
	if p.BuyerID == "" {
		return nil, errutil.ValidationFailed("supertask buyer is required", nil)
	}
	if p.Reward <= 0 {
		return nil, errutil.ValidationFailed("supertask reward must be positive", nil)
	}

	now := time.Now()
	task := &Supertask{
		ID:        s.node.Generate().Int64(),
		GroupID:   p.GroupID,
		BuyerID:   p.BuyerID,
		Title:     p.Title,
		Reward:    p.Reward,
		Status:    TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

type CreateLevelParams struct {
	Name         string
	TargetVolume float64
	Bonus        float64
	StartsAt     time.Time
	EndsAt       time.Time
}

func (s *Service) CreateLevel(ctx context.Context, p CreateLevelParams) (*AvgLevel, error) {
	if p.TargetVolume <= 0 || p.Bonus <= 0 {
		return nil, errutil.ValidationFailed("level target and bonus must be positive", nil)
	}
	if p.EndsAt.IsZero() {
		p.EndsAt = p.StartsAt.AddDate(0, s.cfg.Program.AvgWindowMonths, 0)
	}
	if !p.EndsAt.After(p.StartsAt) {
		return nil, errutil.ValidationFailed("level window must not be empty", nil)
	}

	level := &AvgLevel{
		ID:           s.node.Generate().Int64(),
		Name:         p.Name,
		TargetVolume: p.TargetVolume,
		Bonus:        p.Bonus,
		StartsAt:     p.StartsAt,
		EndsAt:       p.EndsAt,
		Status:       LevelActive,
		CreatedAt:    time.Now(),
	}
	if err := s.levels.Create(ctx, level); err != nil {
		return nil, err
	}

	return level, nil
}

// SuggestTarget proposes a level target for a user: the average monthly
// claimed volume over the configured window, uplifted by the configured
// percentage. Leading months with zero volume are ignored up to the
// configured count, so a late joiner is not handed a trivial target.
func (s *Service) SuggestTarget(ctx context.Context, userID int64, asOf time.Time) (float64, error) {
	months := s.cfg.Program.AvgWindowMonths
	if months <= 0 {
		months = 3
	}

	monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())

	volumes := make([]float64, 0, months)
	for i := months; i > 0; i-- {
		from := monthStart.AddDate(0, -i, 0)
		to := monthStart.AddDate(0, -i+1, 0)

		vol, err := s.claimedVolume(ctx, s.db, userID, from, to)
		if err != nil {
			return 0, err
		}
		volumes = append(volumes, vol)
	}

	skipped := 0
	for len(volumes) > 1 && volumes[0] < Epsilon && skipped < s.cfg.Program.AvgIgnoreInitialZeroMonths {
		volumes = volumes[1:]
		skipped++
	}

	var total float64
	for _, v := range volumes {
		total += v
	}
	avg := total / float64(len(volumes))

	return avg * (1 + float64(s.cfg.Program.AvgUpliftPct)/100), nil
}
