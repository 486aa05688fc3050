package member

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"turnover-rewards/pkg/errutil"
	"turnover-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &CompanyGroup{}, &Organization{}, &Member{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node})
}

func seedGroupAndOrg(t *testing.T, svc *Service) (*CompanyGroup, *Organization) {
	t.Helper()

	group, err := svc.RegisterGroup(context.Background(), "North-West Holding")
	require.NoError(t, err)

	org, err := svc.RegisterOrganization(context.Background(), group.ID, "7701234567", "Trade House LLC")
	require.NoError(t, err)

	return group, org
}

func TestRegisterMember(t *testing.T) {
	svc := newTestService(t)
	group, org := seedGroupAndOrg(t, svc)

	m, err := svc.RegisterMember(context.Background(), RegisterMemberParams{
		UserID:  1001,
		GroupID: group.ID,
		OrgID:   org.ID,
		Role:    RoleSeller,
		Name:    "Ivan",
	})
	require.NoError(t, err)
	require.Equal(t, StatusActive, m.Status)

	got, err := svc.Get(context.Background(), 1001)
	require.NoError(t, err)
	require.Equal(t, group.ID, got.GroupID)
}

func TestRegisterMemberDuplicate(t *testing.T) {
	svc := newTestService(t)
	group, org := seedGroupAndOrg(t, svc)

	params := RegisterMemberParams{UserID: 1001, GroupID: group.ID, OrgID: org.ID, Role: RoleSeller, Name: "Ivan"}

	_, err := svc.RegisterMember(context.Background(), params)
	require.NoError(t, err)

	_, err = svc.RegisterMember(context.Background(), params)
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestRegisterMemberUnknownRole(t *testing.T) {
	svc := newTestService(t)
	group, org := seedGroupAndOrg(t, svc)

	_, err := svc.RegisterMember(context.Background(), RegisterMemberParams{
		UserID: 1001, GroupID: group.ID, OrgID: org.ID, Role: "manager",
	})
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusValidationFailed))
}

func TestActiveTeamLeadsOrderedByRegistration(t *testing.T) {
	svc := newTestService(t)
	group, org := seedGroupAndOrg(t, svc)

	now := time.Now()
	leads := []Member{
		{ID: 3, GroupID: group.ID, OrgID: org.ID, Role: RoleTeamLead, Status: StatusActive, RegisteredAt: now.Add(2 * time.Hour)},
		{ID: 1, GroupID: group.ID, OrgID: org.ID, Role: RoleTeamLead, Status: StatusActive, RegisteredAt: now},
		{ID: 2, GroupID: group.ID, OrgID: org.ID, Role: RoleTeamLead, Status: StatusFired, RegisteredAt: now.Add(time.Hour)},
		{ID: 4, GroupID: group.ID, OrgID: org.ID, Role: RoleSeller, Status: StatusActive, RegisteredAt: now},
	}
	require.NoError(t, svc.members.BatchCreate(context.Background(), leads))

	got, err := svc.ActiveTeamLeads(context.Background(), group.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].ID)
	require.Equal(t, int64(3), got[1].ID)
}

func TestDeactivate(t *testing.T) {
	svc := newTestService(t)
	group, org := seedGroupAndOrg(t, svc)

	_, err := svc.RegisterMember(context.Background(), RegisterMemberParams{
		UserID: 1001, GroupID: group.ID, OrgID: org.ID, Role: RoleSeller,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), 1001))

	got, err := svc.Get(context.Background(), 1001)
	require.NoError(t, err)
	require.Equal(t, StatusFired, got.Status)

	err = svc.Deactivate(context.Background(), 1001)
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}
