package incentive

import (
	"context"
	"errors"
	"time"

	"turnover-rewards/pkg/db/option"
	"turnover-rewards/services/claim"
	"turnover-rewards/services/ledger"
	"turnover-rewards/services/member"
	"turnover-rewards/services/turnover"

	"gorm.io/gorm"
)

// poolTarget: volume x rate while the claim's period sits inside the group
// pool window and the claim is not under dispute. Claims from before the
// program launch earn nothing.
func (s *Service) poolTarget(ctx context.Context, tx *gorm.DB, cl *claim.SalesClaim, record *turnover.TurnoverRecord) (AwardState, error) {
	target := AwardState{OwnerUserID: cl.OwnerUserID}

	if cl.DisputeStatus == claim.DisputeOpen {
		return target, nil
	}
	if record.Period.Before(s.cfg.LaunchDateValue()) {
		return target, nil
	}

	window, err := s.poolWindow(ctx, tx, cl.GroupID)
	if err != nil {
		return target, err
	}
	if window == nil {
		return target, nil
	}
	if record.Period.Before(window.StartsAt) || !record.Period.Before(window.EndsAt) {
		return target, nil
	}

	target.Amount = record.Volume * window.RatePerUnit
	return target, nil
}

// poolWindow loads the group's window, seeding it from the group creation
// time and the program config on first use.
func (s *Service) poolWindow(ctx context.Context, tx *gorm.DB, groupID int64) (*PoolWindow, error) {
	windowsTx := s.windows.WithTrx(tx)

	window, err := windowsTx.FindOne(ctx, &PoolWindow{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	if window != nil {
		return window, nil
	}

	group, err := s.groups.WithTrx(tx).FindOne(ctx, &member.CompanyGroup{ID: groupID})
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, nil
	}

	window = &PoolWindow{
		ID:          s.node.Generate().Int64(),
		GroupID:     groupID,
		StartsAt:    group.CreatedAt,
		EndsAt:      group.CreatedAt.AddDate(0, 0, s.cfg.Program.PoolDays),
		RatePerUnit: s.cfg.Program.PoolRatePerUnit,
		CreatedAt:   time.Now(),
	}
	if err := windowsTx.Create(ctx, window); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return windowsTx.FindOne(ctx, &PoolWindow{GroupID: groupID})
		}
		return nil, err
	}

	return window, nil
}

// newBuyerTarget: a fixed bonus to the first (by period) sale to a buyer
// within the group. The NewBuyerAward row pins the bonus to one claim; when
// an earlier sale surfaces, the row is reassigned and the displaced claim's
// award is zeroed in the same transaction.
func (s *Service) newBuyerTarget(ctx context.Context, tx *gorm.DB, cl *claim.SalesClaim, record *turnover.TurnoverRecord) (AwardState, error) {
	target := AwardState{OwnerUserID: cl.OwnerUserID}

	inns, err := s.groupINNs(ctx, tx, cl.GroupID)
	if err != nil {
		return target, err
	}
	if len(inns) == 0 {
		return target, nil
	}

	var earlier int64
	err = tx.WithContext(ctx).Model(&turnover.TurnoverRecord{}).
		Where("buyer_id = ? AND seller_id IN ? AND period < ?", record.BuyerID, inns, record.Period).
		Count(&earlier).Error
	if err != nil {
		return target, err
	}
	if earlier > 0 {
		// not the first sale: whatever this claim held gets reversed
		return target, nil
	}

	buyerAwardsTx := s.buyerAwards.WithTrx(tx)
	row, err := buyerAwardsTx.FindOne(ctx, &NewBuyerAward{GroupID: cl.GroupID, BuyerID: record.BuyerID},
		option.WithLockingUpdate())
	if err != nil {
		return target, err
	}

	now := time.Now()
	switch {
	case row == nil:
		row = &NewBuyerAward{
			ID:        s.node.Generate().Int64(),
			GroupID:   cl.GroupID,
			BuyerID:   record.BuyerID,
			ClaimID:   cl.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := buyerAwardsTx.Create(ctx, row); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// lost the insert race: the other claim holds the bonus
				return target, nil
			}
			return target, err
		}
	case row.ClaimID != cl.ID:
		displaced, err := s.displacedByEarlierSale(ctx, tx, row.ClaimID, record)
		if err != nil {
			return target, err
		}
		if !displaced {
			return target, nil
		}

		if err := buyerAwardsTx.Update(ctx, row.ID, map[string]any{
			"claim_id":   cl.ID,
			"updated_at": now,
		}); err != nil {
			return target, err
		}
		if err := s.applyStage(ctx, tx, row.ClaimID, StageNewBuyer, AwardState{}); err != nil {
			return target, err
		}
	}

	if cl.DisputeStatus == claim.DisputeOpen {
		return target, nil
	}

	target.Amount = s.cfg.Program.NewBuyerBonus
	return target, nil
}

// displacedByEarlierSale reports whether the record predates the turnover
// row of the claim currently holding the buyer award. Reassignment happens
// only on a strictly earlier period, so ties stay with the first holder.
func (s *Service) displacedByEarlierSale(ctx context.Context, tx *gorm.DB, holderClaimID int64, record *turnover.TurnoverRecord) (bool, error) {
	holder, err := s.claims.WithTrx(tx).FindOne(ctx, &claim.SalesClaim{ID: holderClaimID})
	if err != nil {
		return false, err
	}
	if holder == nil {
		return true, nil
	}

	holderRecord, err := s.records.WithTrx(tx).FindOne(ctx, &turnover.TurnoverRecord{ID: holder.TurnoverID})
	if err != nil {
		return false, err
	}
	if holderRecord == nil {
		return true, nil
	}

	return record.Period.Before(holderRecord.Period), nil
}

// supertaskTarget: claims against the task's buyer compete as candidates.
// Syncing a non-disputed candidate of a pending task closes the task with
// that claim as the single winner; a dispute on the winner reopens it.
func (s *Service) supertaskTarget(ctx context.Context, tx *gorm.DB, cl *claim.SalesClaim, record *turnover.TurnoverRecord) (AwardState, error) {
	target := AwardState{OwnerUserID: cl.OwnerUserID}

	tasksTx := s.tasks.WithTrx(tx)
	candidatesTx := s.candidates.WithTrx(tx)

	task, err := tasksTx.FindOne(ctx, &Supertask{BuyerID: record.BuyerID, Status: TaskPending},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLockingUpdate(),
	)
	if err != nil {
		return target, err
	}
	if task == nil {
		task, err = tasksTx.FindOne(ctx, &Supertask{BuyerID: record.BuyerID, Status: TaskClosed},
			option.WithSortBy(option.QuerySortBy{
				SortBy:  "created_at",
				OrderBy: "asc",
				Allow:   map[string]bool{"created_at": true},
			}),
			option.WithLockingUpdate(),
		)
		if err != nil {
			return target, err
		}
	}
	if task == nil {
		return target, nil
	}

	now := time.Now()

	cand, err := candidatesTx.FindOne(ctx, &SupertaskCandidate{TaskID: task.ID, ClaimID: cl.ID},
		option.WithLockingUpdate())
	if err != nil {
		return target, err
	}
	if cand == nil {
		cand = &SupertaskCandidate{
			ID:        s.node.Generate().Int64(),
			TaskID:    task.ID,
			ClaimID:   cl.ID,
			UserID:    cl.OwnerUserID,
			Status:    CandidatePending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := candidatesTx.Create(ctx, cand); err != nil {
			return target, err
		}
	}

	if cl.DisputeStatus == claim.DisputeOpen {
		if err := s.setCandidateStatus(ctx, tx, cand, CandidatePendingDispute); err != nil {
			return target, err
		}

		// a dispute on the winner reopens the task for everyone
		if task.Status == TaskClosed && task.WinnerClaimID != nil && *task.WinnerClaimID == cl.ID {
			if err := tasksTx.Update(ctx, task.ID, map[string]any{
				"status":          TaskPending,
				"winner_claim_id": nil,
				"closed_at":       nil,
				"updated_at":      now,
			}); err != nil {
				return target, err
			}

			if err := tx.Model(&SupertaskCandidate{}).
				Where("task_id = ? AND status = ?", task.ID, CandidateLost).
				Updates(map[string]any{"status": CandidatePending, "updated_at": now}).Error; err != nil {
				return target, err
			}
		}

		return target, nil
	}

	switch task.Status {
	case TaskPending:
		if err := tasksTx.Update(ctx, task.ID, map[string]any{
			"status":          TaskClosed,
			"winner_claim_id": cl.ID,
			"closed_at":       now,
			"updated_at":      now,
		}); err != nil {
			return target, err
		}

		if err := s.setCandidateStatus(ctx, tx, cand, CandidateWon); err != nil {
			return target, err
		}
		if err := tx.Model(&SupertaskCandidate{}).
			Where("task_id = ? AND claim_id <> ? AND status IN ?", task.ID, cl.ID,
				[]string{CandidatePending, CandidatePendingDispute}).
			Updates(map[string]any{"status": CandidateLost, "updated_at": now}).Error; err != nil {
			return target, err
		}

		target.Amount = task.Reward

	case TaskClosed:
		if task.WinnerClaimID != nil && *task.WinnerClaimID == cl.ID {
			if err := s.setCandidateStatus(ctx, tx, cand, CandidateWon); err != nil {
				return target, err
			}
			target.Amount = task.Reward
		} else {
			if err := s.setCandidateStatus(ctx, tx, cand, CandidateLost); err != nil {
				return target, err
			}
		}
	}

	return target, nil
}

func (s *Service) setCandidateStatus(ctx context.Context, tx *gorm.DB, cand *SupertaskCandidate, status string) error {
	if cand.Status == status {
		return nil
	}
	cand.Status = status
	return s.candidates.WithTrx(tx).Update(ctx, cand.ID, map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	})
}

// syncAvgLevels pays each active level covering the claim owner at most once
// per (level, user, period key). The unique award row is the idempotency
// guard; these awards are never reversed.
func (s *Service) syncAvgLevels(ctx context.Context, tx *gorm.DB, cl *claim.SalesClaim) error {
	levels, err := s.levels.WithTrx(tx).Find(ctx, &AvgLevel{Status: LevelActive},
		option.ApplyOperator(option.Condition{Field: "starts_at", Operator: option.LTE, Value: time.Now()}),
	)
	if err != nil {
		return err
	}

	for i := range levels {
		level := &levels[i]

		existing, err := s.levelAwards.WithTrx(tx).FindOne(ctx, &AvgLevelAward{
			LevelID:   level.ID,
			UserID:    cl.OwnerUserID,
			PeriodKey: level.Period(),
		})
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		volume, err := s.claimedVolume(ctx, tx, cl.OwnerUserID, level.StartsAt, level.EndsAt)
		if err != nil {
			return err
		}
		if volume+Epsilon < level.TargetVolume {
			continue
		}

		award := &AvgLevelAward{
			ID:        s.node.Generate().Int64(),
			LevelID:   level.ID,
			UserID:    cl.OwnerUserID,
			PeriodKey: level.Period(),
			Amount:    level.Bonus,
			CreatedAt: time.Now(),
		}
		if err := s.levelAwards.WithTrx(tx).Create(ctx, award); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return err
		}

		_, err = s.ledger.Append(ctx, tx, ledger.EntryParams{
			UserID:            cl.OwnerUserID,
			Kind:              ledger.KindEarn,
			StageCode:         StageAvgLevel,
			Amount:            level.Bonus,
			RelatedEntityType: "avg_level",
			RelatedEntityID:   level.ID,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// claimedVolume sums the turnover volume of the user's undisputed claims
// whose period falls in [from, to).
func (s *Service) claimedVolume(ctx context.Context, tx *gorm.DB, userID int64, from, to time.Time) (float64, error) {
	var volume float64
	err := tx.WithContext(ctx).Model(&claim.SalesClaim{}).
		Select("COALESCE(SUM(turnover_records.volume), 0)").
		Joins("JOIN turnover_records ON turnover_records.id = sales_claims.turnover_id").
		Where("sales_claims.owner_user_id = ? AND sales_claims.dispute_status = ?", userID, claim.DisputeNone).
		Where("turnover_records.period >= ? AND turnover_records.period < ?", from, to).
		Scan(&volume).Error
	if err != nil {
		return 0, err
	}
	return volume, nil
}

func (s *Service) groupINNs(ctx context.Context, tx *gorm.DB, groupID int64) ([]string, error) {
	orgs, err := s.orgs.WithTrx(tx).Find(ctx, &member.Organization{GroupID: groupID})
	if err != nil {
		return nil, err
	}

	inns := make([]string, 0, len(orgs))
	for _, o := range orgs {
		inns = append(inns, o.INN)
	}
	return inns, nil
}
