package withdrawal

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"turnover-rewards/pkg/db/option"
	"turnover-rewards/pkg/errutil"
	"turnover-rewards/pkg/repository"
	"turnover-rewards/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	ledger *ledger.Service

	requests repository.Repository[WithdrawalRequest]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		ledger: p.Ledger,

		requests: repository.ProvideStore[WithdrawalRequest](p.DB),
	}
}

// Request posts a withdrawal. The balance check and the debit run inside
// one transaction holding a per-user advisory lock, so two concurrent
// requests cannot both pass the check against the same stale balance.
func (s *Service) Request(ctx context.Context, userID int64, amount float64, requisites string) (*WithdrawalRequest, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if amount <= 0 {
		return nil, errutil.ValidationFailed("withdrawal amount must be positive", nil)
	}
	if strings.TrimSpace(requisites) == "" {
		return nil, errutil.ValidationFailed("payout requisites are required", nil)
	}

	now := time.Now()
	request := &WithdrawalRequest{
		ID:          s.node.Generate().Int64(),
		UserID:      userID,
		Amount:      amount,
		Requisites:  requisites,
		Status:      StatusRequested,
		RequestedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.lockUser(ctx, tx, userID); err != nil {
			return err
		}

		balances, err := s.ledger.BalancesTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if amount > balances.Available-balances.Frozen {
			return errutil.Conflict("insufficient funds", nil)
		}

		if err := s.requests.WithTrx(tx).Create(ctx, request); err != nil {
			return err
		}

		meta, err := json.Marshal(map[string]string{"requisites": requisites})
		if err != nil {
			return err
		}

		_, err = s.ledger.Append(ctx, tx, ledger.EntryParams{
			UserID:            userID,
			Kind:              ledger.KindWithdraw,
			Amount:            -amount,
			RelatedEntityType: "withdrawal_request",
			RelatedEntityID:   request.ID,
			Description:       "withdrawal request",
			Metadata:          datatypes.JSON(meta),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("withdrawal requested",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Int64("user_id", userID),
		zap.Int64("request_id", request.ID),
		zap.Float64("amount", amount),
	)

	return request, nil
}

// lockUser serializes the gate per user for the life of the transaction.
// Postgres rejects FOR UPDATE on aggregate selects, so the balance math
// cannot take row locks itself; the advisory lock covers it instead. sqlite
// admits a single writer and needs no lock.
func (s *Service) lockUser(ctx context.Context, tx *gorm.DB, userID int64) error {
	if tx.Dialector != nil && tx.Dialector.Name() == "sqlite" {
		return nil
	}
	return tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", userID).Error
}

func (s *Service) Get(ctx context.Context, id int64) (*WithdrawalRequest, error) {
	r, err := s.requests.FindOne(ctx, &WithdrawalRequest{ID: id})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errutil.NotFound("withdrawal request not found", nil)
	}
	return r, nil
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]WithdrawalRequest, error) {
	return s.requests.Find(ctx, &WithdrawalRequest{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "id",
			OrderBy: "desc",
			Allow:   map[string]bool{"id": true},
		}),
	)
}
