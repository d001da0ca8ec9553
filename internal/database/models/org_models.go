package models

import "time"

// User backs identity resolution: the auth layer supplies {email, role} and
// the users table maps the email to a display name and department.
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"not null" json:"name"`
	Dept      string    `gorm:"index;not null" json:"dept"`
	Role      string    `gorm:"not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KRA is created and deleted elsewhere; this service reads it for access
// checks and denormalized snapshots, and writes only OverallScore through the
// aggregation roll-up.
type KRA struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Dept         string    `gorm:"index;not null" json:"dept"`
	ManagerName  string    `gorm:"index;not null" json:"manager_name"`
	EmployeeName string    `gorm:"index;not null" json:"employee_name"`
	CreatedBy    string    `gorm:"not null" json:"created_by"`
	Target       *float64  `json:"target"`
	OverallScore float64   `json:"overall_score"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
