package member

import (
	"context"
	"errors"
	"time"

	"turnover-rewards/pkg/db/option"
	"turnover-rewards/pkg/errutil"
	"turnover-rewards/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	groups  repository.Repository[CompanyGroup]
	orgs    repository.Repository[Organization]
	members repository.Repository[Member]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		groups:  repository.ProvideStore[CompanyGroup](p.DB),
		orgs:    repository.ProvideStore[Organization](p.DB),
		members: repository.ProvideStore[Member](p.DB),
	}
}

func (s *Service) RegisterGroup(ctx context.Context, name string) (*CompanyGroup, error) {
	if name == "" {
		return nil, errutil.ValidationFailed("group name is required", nil)
	}

	group := &CompanyGroup{
		ID:        s.node.Generate().Int64(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}

	return group, nil
}

func (s *Service) RegisterOrganization(ctx context.Context, groupID int64, inn, name string) (*Organization, error) {
	if inn == "" {
		return nil, errutil.ValidationFailed("organization inn is required", nil)
	}

	group, err := s.groups.FindOne(ctx, &CompanyGroup{ID: groupID})
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, errutil.NotFound("group not found", nil)
	}

	org := &Organization{
		ID:        s.node.Generate().Int64(),
		GroupID:   groupID,
		INN:       inn,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("organization already registered", err)
		}
		return nil, err
	}

	return org, nil
}

type RegisterMemberParams struct {
	UserID  int64
	GroupID int64
	OrgID   int64
	Role    string
	Name    string
}

func (s *Service) RegisterMember(ctx context.Context, p RegisterMemberParams) (*Member, error) {
	if p.Role != RoleSeller && p.Role != RoleTeamLead {
		return nil, errutil.ValidationFailed("unknown member role", nil)
	}

	org, err := s.orgs.FindOne(ctx, &Organization{ID: p.OrgID})
	if err != nil {
		return nil, err
	}
	if org == nil || org.GroupID != p.GroupID {
		return nil, errutil.NotFound("organization not found in group", nil)
	}

	now := time.Now()
	m := &Member{
		ID:           p.UserID,
		GroupID:      p.GroupID,
		OrgID:        p.OrgID,
		Role:         p.Role,
		Status:       StatusActive,
		Name:         p.Name,
		RegisteredAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.members.Create(ctx, m); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("member already registered", err)
		}
		return nil, err
	}

	zap.L().Info("member registered",
		zap.Int64("user_id", m.ID),
		zap.Int64("group_id", m.GroupID),
		zap.String("role", m.Role),
	)

	return m, nil
}

func (s *Service) Get(ctx context.Context, userID int64) (*Member, error) {
	m, err := s.members.FindOne(ctx, &Member{ID: userID})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errutil.NotFound("member not found", nil)
	}
	return m, nil
}

// ActiveTeamLeads returns the active team-lead roster of a group, ordered by
// registration time. The first entry is the default dispute moderator.
func (s *Service) ActiveTeamLeads(ctx context.Context, groupID int64) ([]Member, error) {
	return s.members.Find(ctx, &Member{
		GroupID: groupID,
		Role:    RoleTeamLead,
		Status:  StatusActive,
	}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "registered_at",
		OrderBy: "asc",
		Allow:   map[string]bool{"registered_at": true},
	}))
}

// Deactivate marks a member as fired. Already-posted ledger entries are
// unaffected.
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	res := s.db.WithContext(ctx).Model(&Member{}).
		Where("id = ? AND status = ?", userID, StatusActive).
		Updates(map[string]any{"status": StatusFired, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("active member not found", nil)
	}

	return nil
}

// GroupOrganizationINNs lists the external org identifiers of a group,
// used to scope turnover lookups to the group.
func (s *Service) GroupOrganizationINNs(ctx context.Context, groupID int64) ([]string, error) {
	orgs, err := s.orgs.Find(ctx, &Organization{GroupID: groupID})
	if err != nil {
		return nil, err
	}

	inns := make([]string, 0, len(orgs))
	for _, o := range orgs {
		inns = append(inns, o.INN)
	}
	return inns, nil
}
