// Package domain contains persistence models for external API usage counters.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ApiUsage counts calls to one external API within one period window.
// Counters live in the store, never in process memory, so enforcement stays
// correct across multiple instances.
type ApiUsage struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ApiName   string       `gorm:"type:text;not null;uniqueIndex:ux_api_usage_window" json:"api_name"`
	PeriodKey string       `gorm:"type:text;not null;uniqueIndex:ux_api_usage_window" json:"period_key"`
	Count     int64        `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ApiUsage) TableName() string { return "api_usage" }
