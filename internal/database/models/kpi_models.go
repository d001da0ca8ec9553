package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	StatusActive = "Active"
	StatusEnd    = "End"

	MethodPercentage = "Percentage"
	MethodScale5     = "Scale-1-5"
	MethodScale10    = "Scale-1-10"
	MethodRating     = "Rating"
)

func KnownScoringMethod(method string) bool {
	switch method {
	case MethodPercentage, MethodScale5, MethodScale10, MethodRating:
		return true
	}
	return false
}

// DateOnly strips the time-of-day component. All due-date comparisons are at
// day granularity.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StatusFromDueDate derives the cached status field: End once the due date has
// passed, Active otherwise. Refreshed on writes only, never by a sweep.
func StatusFromDueDate(dueDate, now time.Time) string {
	if DateOnly(dueDate).Before(DateOnly(now)) {
		return StatusEnd
	}
	return StatusActive
}

type KPI struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	Definition    string    `gorm:"type:text;not null" json:"def"`
	KraID         int64     `gorm:"index;not null" json:"kra_id"`
	KraName       string    `gorm:"not null" json:"kra_name"`
	DueDate       time.Time `gorm:"not null" json:"due_date"`
	ScoringMethod string    `gorm:"not null" json:"scoring_method"`
	Target        *float64  `json:"target"`
	CreatedBy     string    `gorm:"index;not null" json:"created_by"`
	Status        string    `gorm:"index;not null" json:"status"`
	Score         *float64  `json:"score"`
	Comments      *string   `gorm:"type:text" json:"comments"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type FieldChange struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// ChangeMap is the changed-field -> {from, to} diff stored on each log row,
// serialized as JSON. A nil map persists as NULL (the creation snapshot).
type ChangeMap map[string]FieldChange

func (m *ChangeMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("failed to scan ChangeMap: %v", value)
}

func (m ChangeMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// ApplyFloatChange records a diff entry when incoming actually differs from
// stored. A nil incoming value means "no change".
func ApplyFloatChange(changes ChangeMap, field string, stored, incoming *float64) *float64 {
	if incoming == nil {
		return stored
	}
	if stored != nil && *stored == *incoming {
		return stored
	}
	var from interface{}
	if stored != nil {
		from = *stored
	}
	changes[field] = FieldChange{From: from, To: *incoming}
	return incoming
}

func ApplyStringChange(changes ChangeMap, field string, stored, incoming *string) *string {
	if incoming == nil {
		return stored
	}
	if stored != nil && *stored == *incoming {
		return stored
	}
	var from interface{}
	if stored != nil {
		from = *stored
	}
	changes[field] = FieldChange{From: from, To: *incoming}
	return incoming
}

// KPILog is one immutable audit row: a full denormalized snapshot of the KPI
// at a version, plus the diff that produced it. Versions per KPI are dense
// and start at 0; the composite unique index backs the monotonicity invariant
// under concurrent writers.
type KPILog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	KpiID        int64     `gorm:"uniqueIndex:idx_kpi_logs_kpi_version;not null" json:"kpi_id"`
	Version      int       `gorm:"uniqueIndex:idx_kpi_logs_kpi_version;not null" json:"version"`
	KpiName      string    `gorm:"not null" json:"kpi_name"`
	KraID        int64     `gorm:"index;not null" json:"kra_id"`
	KraName      string    `gorm:"not null" json:"kra_name"`
	Dept         string    `gorm:"index" json:"dept"`
	Target       *float64  `json:"target"`
	Score        *float64  `json:"score"`
	Comments     *string   `gorm:"type:text" json:"comments"`
	KpiCreatedBy string    `json:"kpi_created_by"`
	KraCreatedBy string    `json:"kra_created_by"`
	DueDate      time.Time `gorm:"index;not null" json:"due_date"`
	UpdatedBy    string    `gorm:"index;not null" json:"updated_by"`
	UpdatedAt    time.Time `gorm:"index;not null" json:"updated_at"`
	Changes      ChangeMap `gorm:"type:jsonb" json:"changes"`
}
