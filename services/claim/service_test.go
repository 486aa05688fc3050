package claim

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"turnover-rewards/pkg/errutil"
	"turnover-rewards/services/member"
	"turnover-rewards/services/testutil"
	"turnover-rewards/services/turnover"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc      *Service
	synced   []int64
	turnover []turnover.TurnoverRecord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&SalesClaim{},
		&turnover.TurnoverRecord{},
		&member.CompanyGroup{},
		&member.Organization{},
		&member.Member{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{}
	f.svc = NewService(ServiceParams{
		DB:   db,
		Node: node,
		Syncer: SyncerFunc(func(ctx context.Context, claimID int64) error {
			f.synced = append(f.synced, claimID)
			return nil
		}),
	})

	now := time.Now()
	require.NoError(t, db.Create(&member.Member{
		ID: 1001, GroupID: 10, OrgID: 20, Role: member.RoleSeller,
		Status: member.StatusActive, RegisteredAt: now,
	}).Error)
	require.NoError(t, db.Create(&member.Member{
		ID: 1002, GroupID: 10, OrgID: 20, Role: member.RoleSeller,
		Status: member.StatusActive, RegisteredAt: now,
	}).Error)

	records := []turnover.TurnoverRecord{
		{ID: 1, Period: now, OperationType: "sale", Product: "cement", SellerID: "7701", BuyerID: "5502", Volume: 10},
		{ID: 2, Period: now, OperationType: "sale", Product: "cement", SellerID: "7701", BuyerID: "5503", Volume: 4},
	}
	require.NoError(t, db.Create(&records).Error)
	f.turnover = records

	return f
}

func TestClaim(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.Claim(context.Background(), 1, 1001)
	require.NoError(t, err)
	require.Equal(t, int64(1001), c.OwnerUserID)
	require.Equal(t, int64(10), c.GroupID)
	require.Equal(t, DisputeNone, c.DisputeStatus)
	require.Equal(t, []int64{c.ID}, f.synced)
}

func TestClaimAlreadyClaimed(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Claim(context.Background(), 1, 1001)
	require.NoError(t, err)

	_, err = f.svc.Claim(context.Background(), 1, 1002)
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))

	// the loser's sync never ran
	require.Len(t, f.synced, 1)
}

func TestClaimUnknownTurnover(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Claim(context.Background(), 999, 1001)
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestClaimInactiveMember(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.db.Model(&member.Member{}).
		Where("id = ?", 1001).
		Update("status", member.StatusFired).Error)

	_, err := f.svc.Claim(context.Background(), 1, 1001)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestClaimBatchPartialSuccess(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Claim(context.Background(), 2, 1002)
	require.NoError(t, err)

	result, err := f.svc.ClaimBatch(context.Background(), []int64{1, 2}, 1001)
	require.NoError(t, err)
	require.Len(t, result.Claimed, 1)
	require.Equal(t, int64(1), result.Claimed[0].TurnoverID)
	require.Equal(t, []int64{2}, result.AlreadyClaimed)
}
