// Package domain contains persistence models for branches.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Branch is an operating location owning its own catalog and closings.
type Branch struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Branch) TableName() string { return "branches" }

var ErrNotFound = errors.New("branch_not_found")
