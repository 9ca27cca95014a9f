package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	DepartmentDevelopment = "Development"
	DepartmentSupport     = "Support"
)

type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Username       string    `json:"username"`
	Department     string    `json:"department"`
	HashedPassword string    `json:"-"` // Not exposed
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
