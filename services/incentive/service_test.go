package incentive

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"turnover-rewards/pkg/config"
	"turnover-rewards/services/claim"
	"turnover-rewards/services/ledger"
	"turnover-rewards/services/member"
	"turnover-rewards/services/testutil"
	"turnover-rewards/services/turnover"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	group *member.CompanyGroup
}

// seeds a group (pool window open from now for 30 days at rate 0.5), one org
// with INN 7701, and sellers 1001/1002.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&StageAward{}, &PoolWindow{}, &NewBuyerAward{},
		&Supertask{}, &SupertaskCandidate{},
		&AvgLevel{}, &AvgLevelAward{},
		&claim.SalesClaim{}, &turnover.TurnoverRecord{},
		&member.CompanyGroup{}, &member.Organization{}, &member.Member{},
		&ledger.LedgerEntry{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Program.PoolDays = 30
	cfg.Program.PoolRatePerUnit = 0.5
	cfg.Program.NewBuyerBonus = 100
	cfg.Program.AvgWindowMonths = 3

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	svc := NewService(ServiceParams{DB: db, Node: node, Config: cfg, Ledger: ledgerSvc})

	group := &member.CompanyGroup{ID: 10, Name: "holding", CreatedAt: time.Now().Add(-24 * time.Hour)}
	require.NoError(t, db.Create(group).Error)
	require.NoError(t, db.Create(&member.Organization{ID: 20, GroupID: 10, INN: "7701", Name: "org"}).Error)

	now := time.Now()
	members := []member.Member{
		{ID: 1001, GroupID: 10, OrgID: 20, Role: member.RoleSeller, Status: member.StatusActive, RegisteredAt: now},
		{ID: 1002, GroupID: 10, OrgID: 20, Role: member.RoleSeller, Status: member.StatusActive, RegisteredAt: now},
	}
	require.NoError(t, db.Create(&members).Error)

	return &fixture{svc: svc, db: db, group: group}
}

func (f *fixture) addRecord(t *testing.T, id int64, buyerID string, period time.Time, volume float64) {
	t.Helper()
	require.NoError(t, f.db.Create(&turnover.TurnoverRecord{
		ID: id, Period: period, OperationType: "sale", Product: "cement",
		SellerID: "7701", BuyerID: buyerID, Volume: volume,
	}).Error)
}

func (f *fixture) addClaim(t *testing.T, id, turnoverID, ownerID int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&claim.SalesClaim{
		ID: id, TurnoverID: turnoverID, OwnerUserID: ownerID, GroupID: 10, OrgID: 20,
		ClaimedAt: time.Now(), DisputeStatus: claim.DisputeNone,
	}).Error)
}

func (f *fixture) setDispute(t *testing.T, claimID int64, open bool) {
	t.Helper()
	status := claim.DisputeNone
	if open {
		status = claim.DisputeOpen
	}
	require.NoError(t, f.db.Model(&claim.SalesClaim{}).
		Where("id = ?", claimID).
		Update("dispute_status", status).Error)
}

func (f *fixture) setOwner(t *testing.T, claimID, ownerID int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&claim.SalesClaim{}).
		Where("id = ?", claimID).
		Update("owner_user_id", ownerID).Error)
}

func (f *fixture) entries(t *testing.T, stage string) []ledger.LedgerEntry {
	t.Helper()
	var out []ledger.LedgerEntry
	require.NoError(t, f.db.Where("stage_code = ?", stage).Order("id ASC").Find(&out).Error)
	return out
}

func (f *fixture) available(t *testing.T, userID int64) float64 {
	t.Helper()
	var sum float64
	require.NoError(t, f.db.Model(&ledger.LedgerEntry{}).
		Select("COALESCE(SUM(available_delta), 0)").
		Where("user_id = ?", userID).
		Scan(&sum).Error)
	return sum
}

func TestSyncClaimPoolBonus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRecord(t, 1, "5502", time.Now(), 10)
	f.addClaim(t, 11, 1, 1001)

	require.NoError(t, f.svc.SyncClaim(ctx, 11))

	entries := f.entries(t, StagePool)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.KindEarn, entries[0].Kind)
	require.InDelta(t, 5.0, entries[0].Amount, Epsilon)
	require.Equal(t, int64(1001), entries[0].UserID)
}

func TestSyncClaimIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRecord(t, 1, "5502", time.Now(), 10)
	f.addClaim(t, 11, 1, 1001)

	require.NoError(t, f.svc.SyncClaim(ctx, 11))

	var before int64
	require.NoError(t, f.db.Model(&ledger.LedgerEntry{}).Count(&before).Error)

	require.NoError(t, f.svc.SyncClaim(ctx, 11))

	var after int64
	require.NoError(t, f.db.Model(&ledger.LedgerEntry{}).Count(&after).Error)
	require.Equal(t, before, after)
}

func TestSyncClaimDisputeFreezesAndReassigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRecord(t, 1, "5502", time.Now(), 10)
	f.addClaim(t, 11, 1, 1001)

	require.NoError(t, f.svc.SyncClaim(ctx, 11))
	require.InDelta(t, 105.0, f.available(t, 1001), Epsilon) // pool 5 + new buyer 100

	// open dispute: both awards reverse to zero
	f.setDispute(t, 11, true)
	require.NoError(t, f.svc.SyncClaim(ctx, 11))
	require.InDelta(t, 0.0, f.available(t, 1001), Epsilon)

	// approve: ownership moves, awards re-earn for the new owner
	f.setOwner(t, 11, 1002)
	f.setDispute(t, 11, false)
	require.NoError(t, f.svc.SyncClaim(ctx, 11))
	require.InDelta(t, 0.0, f.available(t, 1001), Epsilon)
	require.InDelta(t, 105.0, f.available(t, 1002), Epsilon)

	pool := f.entries(t, StagePool)
	require.Len(t, pool, 3) // +5, -5, +5
	require.InDelta(t, -5.0, pool[1].Amount, Epsilon)
	require.Equal(t, int64(1001), pool[1].UserID)
	require.InDelta(t, 5.0, pool[2].Amount, Epsilon)
	require.Equal(t, int64(1002), pool[2].UserID)
}

func TestSyncClaimOutsidePoolWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRecord(t, 1, "5502", time.Now().AddDate(0, 0, 45), 10)
	f.addClaim(t, 11, 1, 1001)

	require.NoError(t, f.svc.SyncClaim(ctx, 11))

	require.Empty(t, f.entries(t, StagePool))
}

func TestSyncClaimBeforeLaunchDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.cfg.Program.LaunchDate = time.Now().AddDate(0, 0, 7).Format("2006-01-02")

	f.addRecord(t, 1, "5502", time.Now(), 10)
	f.addClaim(t, 11, 1, 1001)

	require.NoError(t, f.svc.SyncClaim(ctx, 11))

	require.Empty(t, f.entries(t, StagePool))
}

func TestNewBuyerBonusEarlierSaleWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// the later sale is claimed and synced first, takes the bonus
	f.addRecord(t, 2, "5502", time.Now(), 4)
	f.addClaim(t, 12, 2, 1002)
	require.NoError(t, f.svc.SyncClaim(ctx, 12))

	entries := f.entries(t, StageNewBuyer)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1002), entries[0].UserID)

	// the earlier sale surfaces later (ERP backfill) and is claimed
	f.addRecord(t, 1, "5502", time.Now().AddDate(0, 0, -3), 10)
	f.addClaim(t, 11, 1, 1001)
	require.NoError(t, f.svc.SyncClaim(ctx, 11))

	// the displaced claim's bonus reversed, the earlier claim holds it now
	entries = f.entries(t, StageNewBuyer)
	require.Len(t, entries, 3)
	require.Equal(t, ledger.KindAdjust, entries[1].Kind)
	require.InDelta(t, -100.0, entries[1].Amount, Epsilon)
	require.Equal(t, int64(1002), entries[1].UserID)
	require.Equal(t, int64(1001), entries[2].UserID)

	var row NewBuyerAward
	require.NoError(t, f.db.Where("group_id = ? AND buyer_id = ?", 10, "5502").First(&row).Error)
	require.Equal(t, int64(11), row.ClaimID)

	// re-syncing the displaced claim changes nothing further
	require.NoError(t, f.svc.SyncClaim(ctx, 12))
	require.Len(t, f.entries(t, StageNewBuyer), 3)
}

func TestSupertaskSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.svc.CreateSupertask(ctx, CreateSupertaskParams{
		GroupID: 10, BuyerID: "5502", Title: "land the plant", Reward: 500,
	})
	require.NoError(t, err)

	periods := []time.Time{time.Now(), time.Now().Add(time.Hour), time.Now().Add(2 * time.Hour)}
	for i, p := range periods {
		f.addRecord(t, int64(i+1), "5502", p, 1)
		f.addClaim(t, int64(11+i), int64(i+1), 1001)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.SyncClaim(ctx, int64(11+i)))
	}

	var won, lost int64
	require.NoError(t, f.db.Model(&SupertaskCandidate{}).Where("task_id = ? AND status = ?", task.ID, CandidateWon).Count(&won).Error)
	require.NoError(t, f.db.Model(&SupertaskCandidate{}).Where("task_id = ? AND status = ?", task.ID, CandidateLost).Count(&lost).Error)
	require.EqualValues(t, 1, won)
	require.EqualValues(t, 2, lost)

	entries := f.entries(t, StageSupertask)
	require.Len(t, entries, 1)
	require.InDelta(t, 500.0, entries[0].Amount, Epsilon)

	var got Supertask
	require.NoError(t, f.db.First(&got, task.ID).Error)
	require.Equal(t, TaskClosed, got.Status)
	require.NotNil(t, got.WinnerClaimID)
	require.Equal(t, int64(11), *got.WinnerClaimID)
}

func TestSupertaskDisputeReopens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateSupertask(ctx, CreateSupertaskParams{
		GroupID: 10, BuyerID: "5502", Title: "land the plant", Reward: 500,
	})
	require.NoError(t, err)

	f.addRecord(t, 1, "5502", time.Now(), 1)
	f.addClaim(t, 11, 1, 1001)
	f.addRecord(t, 2, "5502", time.Now().Add(time.Hour), 1)
	f.addClaim(t, 12, 2, 1002)

	require.NoError(t, f.svc.SyncClaim(ctx, 11)) // wins, task closes
	require.NoError(t, f.svc.SyncClaim(ctx, 12)) // lost

	// dispute the winner: task reopens, award reversed, loser back to pending
	f.setDispute(t, 11, true)
	require.NoError(t, f.svc.SyncClaim(ctx, 11))

	var got Supertask
	require.NoError(t, f.db.Where("buyer_id = ?", "5502").First(&got).Error)
	require.Equal(t, TaskPending, got.Status)
	require.Nil(t, got.WinnerClaimID)

	var loser SupertaskCandidate
	require.NoError(t, f.db.Where("claim_id = ?", 12).First(&loser).Error)
	require.Equal(t, CandidatePending, loser.Status)

	entries := f.entries(t, StageSupertask)
	require.Len(t, entries, 2)
	require.InDelta(t, -500.0, entries[1].Amount, Epsilon)

	// the other candidate now takes the task
	require.NoError(t, f.svc.SyncClaim(ctx, 12))
	require.NoError(t, f.db.Where("buyer_id = ?", "5502").First(&got).Error)
	require.Equal(t, TaskClosed, got.Status)
	require.Equal(t, int64(12), *got.WinnerClaimID)
}

func TestAvgLevelAwardedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateLevel(ctx, CreateLevelParams{
		Name: "bronze", TargetVolume: 12, Bonus: 50,
		StartsAt: time.Now().AddDate(0, 0, -7),
	})
	require.NoError(t, err)

	f.addRecord(t, 1, "5502", time.Now(), 10)
	f.addClaim(t, 11, 1, 1001)
	require.NoError(t, f.svc.SyncClaim(ctx, 11))

	// 10 < 12: not reached yet
	require.Empty(t, f.entries(t, StageAvgLevel))

	f.addRecord(t, 2, "5503", time.Now(), 4)
	f.addClaim(t, 12, 2, 1001)
	require.NoError(t, f.svc.SyncClaim(ctx, 12))

	entries := f.entries(t, StageAvgLevel)
	require.Len(t, entries, 1)
	require.InDelta(t, 50.0, entries[0].Amount, Epsilon)

	// further syncs never duplicate and never reverse the level bonus
	require.NoError(t, f.svc.SyncClaim(ctx, 11))
	require.NoError(t, f.svc.SyncClaim(ctx, 12))
	f.setDispute(t, 12, true)
	require.NoError(t, f.svc.SyncClaim(ctx, 12))
	require.Len(t, f.entries(t, StageAvgLevel), 1)
}

func TestSyncAllIsSafeToRerun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addRecord(t, 1, "5502", time.Now(), 10)
	f.addClaim(t, 11, 1, 1001)
	f.addRecord(t, 2, "5503", time.Now(), 4)
	f.addClaim(t, 12, 2, 1002)

	require.NoError(t, f.svc.SyncAll(ctx))

	var before int64
	require.NoError(t, f.db.Model(&ledger.LedgerEntry{}).Count(&before).Error)
	require.NotZero(t, before)

	require.NoError(t, f.svc.SyncAll(ctx))

	var after int64
	require.NoError(t, f.db.Model(&ledger.LedgerEntry{}).Count(&after).Error)
	require.Equal(t, before, after)
}
