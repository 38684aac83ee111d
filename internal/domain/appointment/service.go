package appointment

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/flatrec"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

type Service struct {
	appointments *store.Collection[*Appointment]
}

func NewService(appointments *store.Collection[*Appointment]) *Service {
	return &Service{appointments: appointments}
}

// Create books an appointment. The status is always normalized to
// scheduled; walk-ins default their scheduled time to now.
func (s *Service) Create(appt *Appointment) (*Appointment, error) {
	if strings.TrimSpace(appt.PatientID) == "" {
		return nil, apperror.Validation("patientId is required", nil)
	}
	if appt.ScheduledAt.IsZero() {
		if !appt.IsWalkIn {
			return nil, apperror.Validation("scheduledAt is required for booked appointments", nil)
		}
		appt.ScheduledAt = time.Now()
	}
	appt.Status = StatusScheduled
	return s.appointments.Create(appt)
}

func (s *Service) Get(id string) (*Appointment, error) {
	return s.appointments.Get(id)
}

// List returns appointments, optionally filtered by status and patient.
func (s *Service) List(status Status, patientID string) []*Appointment {
	if status == "" && patientID == "" {
		return s.appointments.List()
	}
	return s.appointments.Find(func(a *Appointment) bool {
		if status != "" && a.Status != status {
			return false
		}
		if patientID != "" && a.PatientID != patientID {
			return false
		}
		return true
	})
}

func (s *Service) Update(id string, patch Patch) (*Appointment, error) {
	rec, ok, err := s.appointments.Update(id, func(a *Appointment) { patch.Apply(a) })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("appointment", id)
	}
	return rec, nil
}

func (s *Service) Delete(id string) (bool, error) {
	return s.appointments.Remove(id)
}

// ImportRows converts flat rows into appointment records and merges them
// in. A missing or unknown status falls back to scheduled.
func (s *Service) ImportRows(rows []flatrec.Row) (int, error) {
	recs := make([]*Appointment, 0, len(rows))
	for _, row := range rows {
		appt := &Appointment{
			PatientID: row.String("patientId"),
			Clinician: row.String("clinician"),
			VisitType: row.String("visitType"),
			Notes:     row.String("notes"),
			IsWalkIn:  row.Bool("isWalkIn"),
			Status:    Status(row.String("status")),
		}
		appt.ID = row.String("id")
		if at := row.Time("scheduledAt"); at != nil {
			appt.ScheduledAt = *at
		}
		if !appt.Status.Valid() {
			appt.Status = StatusScheduled
		}
		if created := row.Time("createdAt"); created != nil {
			appt.CreatedAt = *created
		}
		recs = append(recs, appt)
	}
	return s.appointments.ImportMerge(recs)
}

// ExportRows flattens every appointment into string-keyed rows.
func (s *Service) ExportRows() []flatrec.Row {
	appts := s.appointments.List()
	rows := make([]flatrec.Row, 0, len(appts))
	for _, a := range appts {
		rows = append(rows, flatrec.Row{
			"id":          a.ID,
			"patientId":   a.PatientID,
			"scheduledAt": a.ScheduledAt.Format(time.RFC3339),
			"clinician":   a.Clinician,
			"visitType":   a.VisitType,
			"notes":       a.Notes,
			"isWalkIn":    strconv.FormatBool(a.IsWalkIn),
			"status":      string(a.Status),
		})
	}
	return rows
}

// Snapshot exposes the collection payload for backup bundles.
func (s *Service) Snapshot() (json.RawMessage, error) {
	return s.appointments.ExportSnapshot()
}

func (s *Service) Count() int {
	return s.appointments.Count(nil)
}
