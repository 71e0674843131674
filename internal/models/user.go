package models

import (
	"strconv"
	"time"
)

type UserRole string

const (
	RoleOwner   UserRole = "owner"
	RoleManager UserRole = "manager"
	RoleFlorist UserRole = "florist"
	RoleCourier UserRole = "courier"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleFlorist, RoleCourier:
		return true
	}
	return false
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Phone        string    `gorm:"size:32" json:"phone"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         UserRole  `gorm:"size:20;not null" json:"role"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CustomerActorID is what history rows carry in changed_by for edits made by the customer.
const CustomerActorID = "customer"

// Actor is whoever performs a mutation: a staff user or the external customer.
type Actor struct {
	UserID   uint
	Name     string
	Role     UserRole
	Customer bool
}

func CustomerActor(name string) Actor {
	return Actor{Name: name, Customer: true}
}

func StaffActor(u User) Actor {
	return Actor{UserID: u.ID, Name: u.Name, Role: u.Role}
}

// ID is the stable identity written into ledger and history rows.
func (a Actor) ID() string {
	if a.Customer {
		return CustomerActorID
	}
	return strconv.FormatUint(uint64(a.UserID), 10)
}

func (a Actor) IsStaff() bool {
	return !a.Customer && a.UserID != 0
}
