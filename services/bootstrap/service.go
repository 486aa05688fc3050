package bootstrap

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"turnover-rewards/services/claim"
	"turnover-rewards/services/dispute"
	"turnover-rewards/services/incentive"
	"turnover-rewards/services/ledger"
	"turnover-rewards/services/member"
	"turnover-rewards/services/rating"
	"turnover-rewards/services/turnover"
	"turnover-rewards/services/withdrawal"
)

type Service struct {
	db *gorm.DB
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB}
}

// Migrate brings the schema up to date. AutoMigrate only adds missing
// tables, columns and indexes; it never drops anything, so running it on
// every start is safe.
func (s *Service) Migrate() error {
	err := s.db.AutoMigrate(
		&member.CompanyGroup{},
		&member.Organization{},
		&member.Member{},
		&turnover.TurnoverRecord{},
		&claim.SalesClaim{},
		&dispute.SaleDispute{},
		&ledger.LedgerEntry{},
		&incentive.StageAward{},
		&incentive.PoolWindow{},
		&incentive.NewBuyerAward{},
		&incentive.Supertask{},
		&incentive.SupertaskCandidate{},
		&incentive.AvgLevel{},
		&incentive.AvgLevelAward{},
		&withdrawal.WithdrawalRequest{},
		&rating.RatingSnapshot{},
	)
	if err != nil {
		zap.L().Error("[bootstrap] migration failed", zap.Error(err))
		return err
	}

	zap.L().Info("[bootstrap] schema is up to date")
	return nil
}
