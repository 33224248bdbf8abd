package model

import (
	"time"
)

type UserRole string

const (
	Member  UserRole = "member"
	Manager UserRole = "manager"
	Admin   UserRole = "admin"
)

// swagger:model User
type User struct {
	BaseModel
	ExternalID string    `gorm:"size:64;uniqueIndex;not null" json:"externalId"` // identity already resolved upstream
	OrgID      string    `gorm:"size:64;index;not null" json:"orgId"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	Email      string    `gorm:"size:100;unique;not null" json:"email"`
	Password   string    `gorm:"size:100;not null" json:"-"`
	Role       UserRole  `gorm:"type:enum('member','manager','admin');default:'member'" json:"role"`
	Disabled   bool      `gorm:"default:false" json:"disabled"`
	LastLogin  time.Time `gorm:"default:CURRENT_TIMESTAMP(3)" json:"lastLogin"`
	LastSeen   time.Time `gorm:"default:CURRENT_TIMESTAMP(3)" json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
