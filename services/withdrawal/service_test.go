package withdrawal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"turnover-rewards/pkg/errutil"
	"turnover-rewards/services/claim"
	"turnover-rewards/services/ledger"
	"turnover-rewards/services/testutil"
	"turnover-rewards/services/turnover"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc    *Service
	ledger *ledger.Service
	db     *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&WithdrawalRequest{}, &ledger.LedgerEntry{},
		&claim.SalesClaim{}, &turnover.TurnoverRecord{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	svc := NewService(ServiceParams{DB: db, Node: node, Ledger: ledgerSvc})

	return &fixture{svc: svc, ledger: ledgerSvc, db: db}
}

func (f *fixture) earn(t *testing.T, userID int64, amount float64) {
	t.Helper()
	_, err := f.ledger.Append(context.Background(), nil, ledger.EntryParams{
		UserID: userID, Kind: ledger.KindEarn, StageCode: "pool_bonus", Amount: amount,
	})
	require.NoError(t, err)
}

func TestRequestWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.earn(t, 1001, 50)

	r, err := f.svc.Request(ctx, 1001, 30, "card 1234")
	require.NoError(t, err)
	require.Equal(t, StatusRequested, r.Status)

	b, err := f.ledger.Balances(ctx, 1001)
	require.NoError(t, err)
	require.InDelta(t, 20.0, b.Available, 1e-9)
	require.InDelta(t, 30.0, b.Withdrawn, 1e-9)

	var entry ledger.LedgerEntry
	require.NoError(t, f.db.Where("kind = ?", ledger.KindWithdraw).First(&entry).Error)
	require.InDelta(t, -30.0, entry.Amount, 1e-9)
	require.Equal(t, r.ID, entry.RelatedEntityID)
}

func TestRequestInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.earn(t, 1001, 50)

	_, err := f.svc.Request(ctx, 1001, 60, "card 1234")
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))

	// a rejected request leaves no trace
	var requests, entries int64
	require.NoError(t, f.db.Model(&WithdrawalRequest{}).Count(&requests).Error)
	require.NoError(t, f.db.Model(&ledger.LedgerEntry{}).Where("kind = ?", ledger.KindWithdraw).Count(&entries).Error)
	require.Zero(t, requests)
	require.Zero(t, entries)
}

func TestRequestFrozenReducesWithdrawable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.earn(t, 1001, 50)

	// a disputed claim of volume 40 freezes 40 of the 50
	require.NoError(t, f.db.Create(&turnover.TurnoverRecord{
		ID: 1, Period: time.Now(), OperationType: "sale", Product: "cement",
		SellerID: "7701", BuyerID: "5502", Volume: 40,
	}).Error)
	require.NoError(t, f.db.Create(&claim.SalesClaim{
		ID: 11, TurnoverID: 1, OwnerUserID: 1001, DisputeStatus: claim.DisputeOpen,
	}).Error)

	_, err := f.svc.Request(ctx, 1001, 20, "card 1234")
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))

	r, err := f.svc.Request(ctx, 1001, 10, "card 1234")
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Request(ctx, 1001, 0, "card 1234")
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	_, err = f.svc.Request(ctx, 1001, -5, "card 1234")
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))

	_, err = f.svc.Request(ctx, 1001, 10, "   ")
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

type sqlRecorder struct {
	stmts []string
}

func (r *sqlRecorder) LogMode(logger.LogLevel) logger.Interface { return r }
func (r *sqlRecorder) Info(context.Context, string, ...any)     {}
func (r *sqlRecorder) Warn(context.Context, string, ...any)     {}
func (r *sqlRecorder) Error(context.Context, string, ...any)    {}

func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	r.stmts = append(r.stmts, sql)
}

// Postgres rejects FOR UPDATE combined with aggregates, so the balance math
// inside the gate must stay lock-free and rely on the advisory lock instead.
// Asserted on the generated SQL via a dry-run postgres session.
func TestRequestGateSQLOnPostgres(t *testing.T) {
	rec := &sqlRecorder{}
	db, err := gorm.Open(postgres.Open("host=localhost user=rewards dbname=rewards"), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 rec,
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	svc := NewService(ServiceParams{DB: db, Node: node, Ledger: ledgerSvc})

	ctx := context.Background()
	require.NoError(t, svc.lockUser(ctx, db, 1001))
	_, err = ledgerSvc.BalancesTx(ctx, db, 1001)
	require.NoError(t, err)

	var locked bool
	for _, stmt := range rec.stmts {
		if strings.Contains(stmt, "pg_advisory_xact_lock") {
			locked = true
			continue
		}
		require.NotContains(t, stmt, "FOR UPDATE")
	}
	require.True(t, locked)
	require.Len(t, rec.stmts, 5) // the lock plus the four balance aggregates
}

func TestListByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.earn(t, 1001, 100)

	first, err := f.svc.Request(ctx, 1001, 10, "card 1234")
	require.NoError(t, err)
	second, err := f.svc.Request(ctx, 1001, 20, "card 1234")
	require.NoError(t, err)

	list, err := f.svc.ListByUser(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)
}
