package member

import "time"

const (
	RoleSeller   = "seller"
	RoleTeamLead = "teamlead"

	StatusActive = "active"
	StatusFired  = "fired"
)

// CompanyGroup is a holding of organizations sharing one bonus pool window
// and one team-lead roster.
type CompanyGroup struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

type Organization struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	GroupID   int64     `gorm:"column:group_id;index"`
	INN       string    `gorm:"column:inn;uniqueIndex"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// Member.ID is the external account id of the salesperson, not a generated
// one, so re-registration of the same account is a conflict.
type Member struct {
	ID           int64     `gorm:"column:id;primaryKey"`
	GroupID      int64     `gorm:"column:group_id;index"`
	OrgID        int64     `gorm:"column:org_id;index"`
	Role         string    `gorm:"column:role"`
	Status       string    `gorm:"column:status"`
	Name         string    `gorm:"column:name"`
	RegisteredAt time.Time `gorm:"column:registered_at"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}
