// Package models defines the run-history records persisted between
// invocations.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Run records one completed replx invocation.
type Run struct {
	ID string `gorm:"primaryKey;type:varchar(36)"`

	ScanRoot    string `gorm:"type:text;not null"`
	MappingPath string `gorm:"type:text"`
	Mode        string `gorm:"type:varchar(20);not null"`
	JournalPath string `gorm:"type:text"`

	// Terminal counts at the end of the run.
	Completed int `gorm:"default:0"`
	Failed    int `gorm:"default:0"`
	Skipped   int `gorm:"default:0"`

	// Stats carries auxiliary values (planned transaction count,
	// side-log paths, duration) without schema churn.
	Stats datatypes.JSON `gorm:"type:jsonb"`

	Status     string    `gorm:"type:varchar(20);default:'completed'"`
	StartedAt  time.Time `gorm:"autoCreateTime"`
	FinishedAt *time.Time
}

// TableName customization for a cleaner name.
func (Run) TableName() string { return "runs" }
