package availability

import (
	"time"

	"github.com/google/uuid"
)

// Rule is one weekly availability window for a professional. DayOfWeek uses
// 0=Sunday through 6=Saturday. StartTime and EndTime are clock times in the
// clinic's local zone, stored as "HH:MM".
type Rule struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	DayOfWeek      int       `json:"day_of_week"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Exception is a dated deviation from the weekly rules. A nil ProfessionalID
// makes the exception clinic-wide. Nil StartTime and EndTime together mean
// the whole day; a time range bounds the deviation to [StartTime, EndTime).
// IsAvailable=false blocks, IsAvailable=true records extra availability.
type Exception struct {
	ID             uuid.UUID  `json:"id"`
	ProfessionalID *uuid.UUID `json:"professional_id"`
	Date           time.Time  `json:"date"`
	IsAvailable    bool       `json:"is_available"`
	StartTime      *string    `json:"start_time"`
	EndTime        *string    `json:"end_time"`
	Reason         *string    `json:"reason"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// WholeDay reports whether the exception covers the entire date rather than
// a time range.
func (e *Exception) WholeDay() bool {
	return e.StartTime == nil && e.EndTime == nil
}

// AppliesTo reports whether the exception concerns the given professional,
// either specifically or clinic-wide.
func (e *Exception) AppliesTo(professionalID uuid.UUID) bool {
	return e.ProfessionalID == nil || *e.ProfessionalID == professionalID
}
