package visit

import (
	"sort"
)

// WaitingPatient is one row of the reception waiting view: a queue entry
// joined with the patient's display name.
type WaitingPatient struct {
	QueueEntryID  string  `json:"queueEntryId"`
	AppointmentID string  `json:"appointmentId"`
	PatientID     string  `json:"patientId,omitempty"`
	PatientName   string  `json:"patientName"`
	Position      int     `json:"position"`
	Urgency       Urgency `json:"urgency"`
	ServiceType   string  `json:"serviceType,omitempty"`
	Skipped       bool    `json:"skipped"`
}

// WaitingQueue returns the patients not yet called, in serving order:
// emergencies first, then urgent, then by ascending position. Entries
// whose patient record has gone missing still show, named "unknown".
func (e *Engine) WaitingQueue() []WaitingPatient {
	e.mu.Lock()
	defer e.mu.Unlock()

	waiting := e.queue.Find(func(q *QueueEntry) bool { return q.Waiting() })
	sort.Slice(waiting, func(i, j int) bool {
		if waiting[i].Urgency.rank() != waiting[j].Urgency.rank() {
			return waiting[i].Urgency.rank() < waiting[j].Urgency.rank()
		}
		return waiting[i].Position < waiting[j].Position
	})

	out := make([]WaitingPatient, 0, len(waiting))
	for _, q := range waiting {
		name := "unknown"
		if p, err := e.patients.Get(q.PatientID); err == nil {
			name = p.Name
		}
		out = append(out, WaitingPatient{
			QueueEntryID:  q.ID,
			AppointmentID: q.AppointmentID,
			PatientID:     q.PatientID,
			PatientName:   name,
			Position:      q.Position,
			Urgency:       q.Urgency,
			ServiceType:   q.ServiceType,
			Skipped:       q.Skipped,
		})
	}
	return out
}
