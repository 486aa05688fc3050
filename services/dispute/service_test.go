package dispute

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"turnover-rewards/pkg/errutil"
	"turnover-rewards/services/claim"
	"turnover-rewards/services/member"
	"turnover-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc    *Service
	synced []int64
}

// seeds: claim 11 owned by seller 1001; seller 1002 in the same group;
// team-leads 2001 (earliest) and 2002.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &SaleDispute{}, &claim.SalesClaim{}, &member.Member{})
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
	members := []member.Member{
		{ID: 1001, GroupID: 10, Role: member.RoleSeller, Status: member.StatusActive, RegisteredAt: now},
		{ID: 1002, GroupID: 10, Role: member.RoleSeller, Status: member.StatusActive, RegisteredAt: now},
		{ID: 2001, GroupID: 10, Role: member.RoleTeamLead, Status: member.StatusActive, RegisteredAt: now.Add(-time.Hour)},
		{ID: 2002, GroupID: 10, Role: member.RoleTeamLead, Status: member.StatusActive, RegisteredAt: now},
	}
	require.NoError(t, db.Create(&members).Error)

	require.NoError(t, db.Create(&claim.SalesClaim{
		ID: 11, TurnoverID: 1, OwnerUserID: 1001, GroupID: 10,
		ClaimedAt: now, DisputeStatus: claim.DisputeNone,
	}).Error)

	return f
}

func (f *fixture) claim(t *testing.T, id int64) *claim.SalesClaim {
	t.Helper()
	var c claim.SalesClaim
	require.NoError(t, f.svc.db.First(&c, id).Error)
	return &c
}

func TestOpenAssignsEarliestTeamLead(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Open(context.Background(), 11, 1002)
	require.NoError(t, err)
	require.Equal(t, int64(2001), d.ModeratorUserID)
	require.Equal(t, int64(1001), d.DefendantUserID)

	c := f.claim(t, 11)
	require.Equal(t, claim.DisputeOpen, c.DisputeStatus)
	require.NotNil(t, c.DisputeID)
	require.Equal(t, d.ID, *c.DisputeID)
	require.Equal(t, []int64{11}, f.synced)
}

func TestOpenTeamLeadModeratesOwnDispute(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Open(context.Background(), 11, 2002)
	require.NoError(t, err)
	require.Equal(t, int64(2002), d.ModeratorUserID)
}

func TestOpenNoModeratorAvailable(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.db.Model(&member.Member{}).
		Where("role = ?", member.RoleTeamLead).
		Update("status", member.StatusFired).Error)

	_, err := f.svc.Open(context.Background(), 11, 1002)
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestOpenTwiceConflicts(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Open(context.Background(), 11, 1002)
	require.NoError(t, err)

	_, err = f.svc.Open(context.Background(), 11, 1002)
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))

	// the losing open left no dispute row behind
	count, err := f.svc.disputes.Count(context.Background(), &SaleDispute{ClaimID: 11})
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestOpenOwnClaimRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Open(context.Background(), 11, 1001)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestCancelOnlyByInitiator(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Open(context.Background(), 11, 1002)
	require.NoError(t, err)

	err = f.svc.Cancel(context.Background(), d.ID, 1001)
	require.True(t, errutil.IsStatus(err, errutil.StatusForbidden))

	require.NoError(t, f.svc.Cancel(context.Background(), d.ID, 1002))

	c := f.claim(t, 11)
	require.Equal(t, claim.DisputeNone, c.DisputeStatus)
	require.Nil(t, c.DisputeID)
	require.Equal(t, int64(1001), c.OwnerUserID)

	// terminal: a second cancel conflicts
	err = f.svc.Cancel(context.Background(), d.ID, 1002)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestResolveApproveReassignsOwner(t *testing.T) {
	f := newFixture(t)

	before := f.claim(t, 11).ClaimedAt

	d, err := f.svc.Open(context.Background(), 11, 1002)
	require.NoError(t, err)

	err = f.svc.Resolve(context.Background(), d.ID, 1002, true)
	require.True(t, errutil.IsStatus(err, errutil.StatusForbidden))

	require.NoError(t, f.svc.Resolve(context.Background(), d.ID, 2001, true))

	c := f.claim(t, 11)
	require.Equal(t, int64(1002), c.OwnerUserID)
	require.Equal(t, claim.DisputeNone, c.DisputeStatus)
	require.True(t, c.ClaimedAt.After(before) || c.ClaimedAt.Equal(before))

	got, err := f.svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.NotNil(t, got.ResolvedAt)

	// open + resolve both synced the claim
	require.Equal(t, []int64{11, 11}, f.synced)
}

func TestResolveRejectKeepsOwner(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.Open(context.Background(), 11, 1002)
	require.NoError(t, err)

	require.NoError(t, f.svc.Resolve(context.Background(), d.ID, 2001, false))

	c := f.claim(t, 11)
	require.Equal(t, int64(1001), c.OwnerUserID)
	require.Equal(t, claim.DisputeNone, c.DisputeStatus)

	got, err := f.svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
}
