package visit

import (
	"math"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// Collection keys owned by the visit engine. Only the engine writes these;
// CRUD surfaces read them for display.
const (
	TriageCollectionKey       = "triage"
	QueueCollectionKey        = "queue"
	ConsultationCollectionKey = "consultations"
	PrescriptionCollectionKey = "prescriptions"
	LabOrderCollectionKey     = "lab_orders"
)

// Urgency orders patients in the waiting queue.
type Urgency string

const (
	UrgencyNormal    Urgency = "normal"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyNormal, UrgencyUrgent, UrgencyEmergency:
		return true
	}
	return false
}

// rank returns the sort weight; lower is served first.
func (u Urgency) rank() int {
	switch u {
	case UrgencyEmergency:
		return 0
	case UrgencyUrgent:
		return 1
	default:
		return 2
	}
}

// Vitals captured during triage. All measurements are optional.
type Vitals struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	BloodPressure    string   `json:"bloodPressure,omitempty"`
	Pulse            *int     `json:"pulse,omitempty"`
	RespiratoryRate  *int     `json:"respiratoryRate,omitempty"`
	OxygenSaturation *float64 `json:"oxygenSaturation,omitempty"`
	Weight           *float64 `json:"weight,omitempty"` // kg
	Height           *float64 `json:"height,omitempty"` // cm
	PainLevel        *int     `json:"painLevel,omitempty"`
}

// BMI derives body mass index from weight and height, rounded to one
// decimal. Nil when either input is missing or height is zero.
func (v Vitals) BMI() *float64 {
	if v.Weight == nil || v.Height == nil || *v.Height == 0 {
		return nil
	}
	meters := *v.Height / 100
	bmi := math.Round(*v.Weight/(meters*meters)*10) / 10
	return &bmi
}

// TriageRecord is created once per appointment when triage completes.
type TriageRecord struct {
	store.Meta
	AppointmentID string   `json:"appointmentId"`
	Vitals        Vitals   `json:"vitals"`
	BMI           *float64 `json:"bmi,omitempty"`
	Urgency       Urgency  `json:"urgency"`
	ServiceType   string   `json:"serviceType,omitempty"`
	RecordedBy    string   `json:"recordedBy,omitempty"`
}

// QueueEntry is the waiting-room ticket for one appointment. Positions are
// never reused: a skipped entry moves to one past the current maximum.
type QueueEntry struct {
	store.Meta
	AppointmentID string  `json:"appointmentId"`
	PatientID     string  `json:"patientId,omitempty"`
	Position      int     `json:"position"`
	Urgency       Urgency `json:"urgency"`
	ServiceType   string  `json:"serviceType,omitempty"`
	Called        bool    `json:"called"`
	Skipped       bool    `json:"skipped"`
	Completed     bool    `json:"completed"`
}

// Active reports whether the entry still occupies a queue position.
func (q *QueueEntry) Active() bool {
	return !q.Completed
}

// Waiting reports whether the entry shows up in the waiting view.
func (q *QueueEntry) Waiting() bool {
	return !q.Called && !q.Completed
}

// Diagnosis is a coded finding, unique by code within one consultation.
type Diagnosis struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Consultation struct {
	store.Meta
	AppointmentID string      `json:"appointmentId"`
	Complaint     string      `json:"complaint,omitempty"`
	History       string      `json:"history,omitempty"`
	Examination   string      `json:"examination,omitempty"`
	Diagnoses     []Diagnosis `json:"diagnoses"`
	FollowUpDate  *time.Time  `json:"followUpDate,omitempty"`
	Referral      string      `json:"referral,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	ConductedBy   string      `json:"conductedBy,omitempty"`
}

// MedicationLine is one prescribed medication; each line is marked
// dispensed individually before the prescription can be closed.
type MedicationLine struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Dispensed    bool   `json:"dispensed"`
}

type Prescription struct {
	store.Meta
	AppointmentID  string           `json:"appointmentId"`
	ConsultationID string           `json:"consultationId,omitempty"`
	Medications    []MedicationLine `json:"medications"`
	Dispensed      bool             `json:"dispensed"`
	DispensedAt    *time.Time       `json:"dispensedAt,omitempty"`
	DispensedBy    string           `json:"dispensedBy,omitempty"`
}

// LabStatus is the lab-order lifecycle: pending → in-progress → completed.
type LabStatus string

const (
	LabPending    LabStatus = "pending"
	LabInProgress LabStatus = "in-progress"
	LabCompleted  LabStatus = "completed"
)

type LabTest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type LabResult struct {
	Value      string    `json:"value"`
	Notes      string    `json:"notes,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
	RecordedBy string    `json:"recordedBy,omitempty"`
}

type LabOrder struct {
	store.Meta
	AppointmentID  string               `json:"appointmentId"`
	ConsultationID string               `json:"consultationId,omitempty"`
	Tests          []LabTest            `json:"tests"`
	Status         LabStatus            `json:"status"`
	Results        map[string]LabResult `json:"results,omitempty"`
	CompletedAt    *time.Time           `json:"completedAt,omitempty"`
}

// MissingResults lists test codes without a recorded result.
func (o *LabOrder) MissingResults() []string {
	var missing []string
	for _, test := range o.Tests {
		if _, ok := o.Results[test.Code]; !ok {
			missing = append(missing, test.Code)
		}
	}
	return missing
}
