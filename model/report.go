package model

import (
	"time"

	"gorm.io/datatypes"
)

// OutcomeReport is one finished evaluation. Summary holds the full outcome
// distribution as JSON; the scalar columns are for listing and filtering.
type OutcomeReport struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Scenario     string         `gorm:"index:idx_report_scenario;size:128" json:"scenario"`
	ScenarioHash string         `gorm:"index:idx_report_hash;size:64;not null" json:"scenario_hash"`
	TraceID      string         `gorm:"size:64" json:"trace_id"`
	Terminals    int64          `json:"terminals"`
	Coverage     float64        `json:"coverage"`
	Abandoned    float64        `json:"abandoned"`
	MaxDepth     int            `json:"max_depth"`
	DurationMs   int64          `json:"duration_ms"`
	Summary      datatypes.JSON `json:"summary"`
	CreatedAt    time.Time      `gorm:"index:idx_report_created;autoCreateTime:milli" json:"created_at"`
}
