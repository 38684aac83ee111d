package appointment

import (
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// CollectionKey is the store key for appointment records.
const CollectionKey = "appointments"

// Status is the closed vocabulary of appointment states. Forward flow:
// scheduled → checked_in → triaged → in_queue → with_doctor →
// {lab | pharmacy} → completed, with no_show and cancelled as absorbing
// side states reachable only early in the visit.
type Status string

const (
	StatusScheduled       Status = "scheduled"
	StatusCheckedIn       Status = "checked_in"
	StatusTriaged         Status = "triaged"
	StatusInQueue         Status = "in_queue"
	StatusWithDoctor      Status = "with_doctor"
	StatusLab             Status = "lab"
	StatusLabResultsReady Status = "lab_results_ready"
	StatusPharmacy        Status = "pharmacy"
	StatusCompleted       Status = "completed"
	StatusNoShow          Status = "no_show"
	StatusCancelled       Status = "cancelled"
)

// Valid reports whether s is part of the vocabulary.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCheckedIn, StatusTriaged, StatusInQueue,
		StatusWithDoctor, StatusLab, StatusLabResultsReady, StatusPharmacy,
		StatusCompleted, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusNoShow || s == StatusCancelled
}

type Appointment struct {
	store.Meta
	PatientID   string    `json:"patientId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Clinician   string    `json:"clinician,omitempty"`
	VisitType   string    `json:"visitType,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	IsWalkIn    bool      `json:"isWalkIn,omitempty"`
	Status      Status    `json:"status"`

	CheckedInAt    *time.Time `json:"checkedInAt,omitempty"`
	TriagedAt      *time.Time `json:"triagedAt,omitempty"`
	CalledAt       *time.Time `json:"calledAt,omitempty"`
	ConsultedAt    *time.Time `json:"consultedAt,omitempty"`
	LabCompletedAt *time.Time `json:"labCompletedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`

	CheckedInBy string `json:"checkedInBy,omitempty"`
	TriagedBy   string `json:"triagedBy,omitempty"`
	ConsultedBy string `json:"consultedBy,omitempty"`
	CompletedBy string `json:"completedBy,omitempty"`
	CancelledBy string `json:"cancelledBy,omitempty"`
	NoShowBy    string `json:"noShowBy,omitempty"`
}

// Patch covers the fields editable through plain CRUD. Status and the
// workflow timestamps change only through visit transitions.
type Patch struct {
	PatientID   *string    `json:"patientId,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Clinician   *string    `json:"clinician,omitempty"`
	VisitType   *string    `json:"visitType,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	IsWalkIn    *bool      `json:"isWalkIn,omitempty"`
}

func (p Patch) Apply(rec *Appointment) {
	if p.PatientID != nil {
		rec.PatientID = *p.PatientID
	}
	if p.ScheduledAt != nil {
		rec.ScheduledAt = *p.ScheduledAt
	}
	if p.Clinician != nil {
		rec.Clinician = *p.Clinician
	}
	if p.VisitType != nil {
		rec.VisitType = *p.VisitType
	}
	if p.Notes != nil {
		rec.Notes = *p.Notes
	}
	if p.IsWalkIn != nil {
		rec.IsWalkIn = *p.IsWalkIn
	}
}
