// Package visit encodes the clinical visit state machine. The Engine is
// the only writer of the triage, queue, consultation, prescription and
// lab-order collections and drives appointments through their status
// vocabulary; patient and appointment CRUD stays with their own services.
package visit

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// Engine orchestrates visit transitions. A single mutex serializes all
// transitions so read-then-write sequences (queue positions, duplicate
// triage guards) behave as one step per appointment.
type Engine struct {
	mu sync.Mutex

	appointments  *store.Collection[*appointment.Appointment]
	patients      *store.Collection[*patient.Patient]
	triage        *store.Collection[*TriageRecord]
	queue         *store.Collection[*QueueEntry]
	consultations *store.Collection[*Consultation]
	prescriptions *store.Collection[*Prescription]
	labOrders     *store.Collection[*LabOrder]

	logger zerolog.Logger
	now    func() time.Time
}

// Collections groups the stores the engine works over.
type Collections struct {
	Appointments  *store.Collection[*appointment.Appointment]
	Patients      *store.Collection[*patient.Patient]
	Triage        *store.Collection[*TriageRecord]
	Queue         *store.Collection[*QueueEntry]
	Consultations *store.Collection[*Consultation]
	Prescriptions *store.Collection[*Prescription]
	LabOrders     *store.Collection[*LabOrder]
}

func NewEngine(c Collections, logger zerolog.Logger) *Engine {
	return &Engine{
		appointments:  c.Appointments,
		patients:      c.Patients,
		triage:        c.Triage,
		queue:         c.Queue,
		consultations: c.Consultations,
		prescriptions: c.Prescriptions,
		labOrders:     c.LabOrders,
		logger:        logger,
		now:           time.Now,
	}
}

// TriageInput is the nurse-entered payload for complete-triage.
type TriageInput struct {
	Vitals      Vitals  `json:"vitals"`
	Urgency     Urgency `json:"urgency"`
	ServiceType string  `json:"serviceType"`
}

// ConsultationInput is the clinician-entered payload for
// complete-consultation. SendTo requests routing; actual routing also
// depends on what was prescribed and ordered.
type ConsultationInput struct {
	Complaint    string           `json:"complaint"`
	History      string           `json:"history"`
	Examination  string           `json:"examination"`
	Diagnoses    []Diagnosis      `json:"diagnoses"`
	Medications  []MedicationLine `json:"medications"`
	LabTests     []LabTest        `json:"labTests"`
	FollowUpDate *time.Time       `json:"followUpDate"`
	Referral     string           `json:"referral"`
	Notes        string           `json:"notes"`
	SendTo       string           `json:"sendTo"`
}

// ConsultationOutcome reports everything a completed consultation
// produced.
type ConsultationOutcome struct {
	Appointment  *appointment.Appointment `json:"appointment"`
	Consultation *Consultation            `json:"consultation"`
	Prescription *Prescription            `json:"prescription,omitempty"`
	LabOrder     *LabOrder                `json:"labOrder,omitempty"`
}

// CheckIn moves a scheduled appointment to checked_in.
func (e *Engine) CheckIn(appointmentID, actor string) (*appointment.Appointment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	appt, err := e.appointments.Get(appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusScheduled {
		return nil, e.wrongStatus(appt, appointment.StatusScheduled)
	}

	now := e.now()
	return e.updateAppointment(appt, func(a *appointment.Appointment) {
		a.Status = appointment.StatusCheckedIn
		a.CheckedInAt = &now
		a.CheckedInBy = actor
	})
}

// MarkNoShow marks an appointment whose patient never arrived.
func (e *Engine) MarkNoShow(appointmentID, actor string) (*appointment.Appointment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	appt, err := e.appointments.Get(appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusScheduled && appt.Status != appointment.StatusCheckedIn {
		return nil, e.wrongStatus(appt, appointment.StatusScheduled, appointment.StatusCheckedIn)
	}

	return e.updateAppointment(appt, func(a *appointment.Appointment) {
		a.Status = appointment.StatusNoShow
		a.NoShowBy = actor
	})
}

// Cancel aborts an appointment before triage.
func (e *Engine) Cancel(appointmentID, actor string) (*appointment.Appointment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	appt, err := e.appointments.Get(appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusScheduled && appt.Status != appointment.StatusCheckedIn {
		return nil, e.wrongStatus(appt, appointment.StatusScheduled, appointment.StatusCheckedIn)
	}

	return e.updateAppointment(appt, func(a *appointment.Appointment) {
		a.Status = appointment.StatusCancelled
		a.CancelledBy = actor
	})
}

// CompleteTriage records vitals, computes BMI, moves the appointment into
// the queue and issues its queue ticket. Exactly one triage record may
// exist per appointment.
func (e *Engine) CompleteTriage(appointmentID string, input TriageInput, actor string) (*TriageRecord, *QueueEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	appt, err := e.appointments.Get(appointmentID)
	if err != nil {
		return nil, nil, err
	}
	if appt.Status != appointment.StatusCheckedIn {
		return nil, nil, e.wrongStatus(appt, appointment.StatusCheckedIn)
	}
	if _, exists := e.triage.FindOne(byAppointment[*TriageRecord](appointmentID)); exists {
		return nil, nil, apperror.Precondition("appointment is already triaged", map[string]string{
			"appointmentId": appointmentID,
		})
	}
	if input.Urgency == "" {
		input.Urgency = UrgencyNormal
	}
	if !input.Urgency.Valid() {
		return nil, nil, apperror.Validation("unknown urgency", map[string]string{"urgency": string(input.Urgency)})
	}

	// The appointment update is the first write and the precondition
	// gate: once the status leaves checked_in no second triage can pass.
	now := e.now()
	if _, err := e.updateAppointment(appt, func(a *appointment.Appointment) {
		a.Status = appointment.StatusInQueue
		a.TriagedAt = &now
		a.TriagedBy = actor
	}); err != nil {
		return nil, nil, err
	}

	rec, err := e.triage.Create(&TriageRecord{
		AppointmentID: appointmentID,
		Vitals:        input.Vitals,
		BMI:           input.Vitals.BMI(),
		Urgency:       input.Urgency,
		ServiceType:   input.ServiceType,
		RecordedBy:    actor,
	})
	if err != nil {
		return nil, nil, err
	}

	position := e.queue.Count(func(q *QueueEntry) bool { return q.Active() }) + 1
	entry, err := e.queue.Create(&QueueEntry{
		AppointmentID: appointmentID,
		PatientID:     appt.PatientID,
		Position:      position,
		Urgency:       input.Urgency,
		ServiceType:   input.ServiceType,
	})
	if err != nil {
		return nil, nil, err
	}

	e.updateWaitingGauge()
	return rec, entry, nil
}

// CallNext serves the highest-priority waiting entry: emergencies first,
// then urgent, then by ascending position.
func (e *Engine) CallNext(actor string) (*QueueEntry, *appointment.Appointment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.nextWaiting()
	if next == nil {
		return nil, nil, apperror.Precondition("no patients waiting", nil)
	}

	appt, err := e.appointments.Get(next.AppointmentID)
	if err != nil {
		return nil, nil, err
	}
	if appt.Status != appointment.StatusInQueue {
		return nil, nil, e.wrongStatus(appt, appointment.StatusInQueue)
	}

	now := e.now()
	updatedAppt, err := e.updateAppointment(appt, func(a *appointment.Appointment) {
		a.Status = appointment.StatusWithDoctor
		a.CalledAt = &now
	})
	if err != nil {
		return nil, nil, err
	}

	entry, ok, err := e.queue.Update(next.ID, func(q *QueueEntry) { q.Called = true })
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, apperror.NotFound("queue entry", next.ID)
	}

	e.updateWaitingGauge()
	e.logger.Info().Str("appointment_id", appt.ID).Int("position", entry.Position).Str("actor", actor).Msg("patient called")
	return entry, updatedAppt, nil
}

// Skip cycles an active queue entry to the back of the queue. The vacated
// position is never reused.
func (e *Engine) Skip(queueEntryID, actor string) (*QueueEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.queue.Get(queueEntryID)
	if err != nil {
		return nil, err
	}
	if entry.Completed {
		return nil, apperror.Precondition("queue entry is already completed", map[string]string{
			"queueEntryId": queueEntryID,
		})
	}

	maxPos := 0
	for _, q := range e.queue.Find(func(q *QueueEntry) bool { return q.Active() }) {
		if q.Position > maxPos {
			maxPos = q.Position
		}
	}

	updated, ok, err := e.queue.Update(queueEntryID, func(q *QueueEntry) {
		q.Position = maxPos + 1
		q.Skipped = true
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("queue entry", queueEntryID)
	}

	e.logger.Info().Str("queue_entry_id", queueEntryID).Int("position", updated.Position).Str("actor", actor).Msg("patient skipped")
	return updated, nil
}

// CompleteConsultation records the consultation and routes the visit:
// lab when requested with tests ordered, pharmacy when medications were
// prescribed, otherwise straight to completed.
func (e *Engine) CompleteConsultation(appointmentID string, input ConsultationInput, actor string) (*ConsultationOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	appt, err := e.appointments.Get(appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusWithDoctor {
		return nil, e.wrongStatus(appt, appointment.StatusWithDoctor)
	}
	if len(input.Diagnoses) == 0 {
		return nil, apperror.Validation("at least one diagnosis is required", nil)
	}
	if _, exists := e.consultations.FindOne(byAppointment[*Consultation](appointmentID)); exists {
		return nil, apperror.Precondition("appointment already has a consultation", map[string]string{
			"appointmentId": appointmentID,
		})
	}

	diagnoses := dedupeDiagnoses(input.Diagnoses)

	next := appointment.StatusCompleted
	if input.SendTo == "lab" && len(input.LabTests) > 0 {
		next = appointment.StatusLab
	} else if len(input.Medications) > 0 {
		next = appointment.StatusPharmacy
	}

	now := e.now()
	updatedAppt, err := e.updateAppointment(appt, func(a *appointment.Appointment) {
		a.Status = next
		a.ConsultedAt = &now
		a.ConsultedBy = actor
		if next == appointment.StatusCompleted {
			a.CompletedAt = &now
			a.CompletedBy = actor
		}
	})
	if err != nil {
		return nil, err
	}

	consultation, err := e.consultations.Create(&Consultation{
		AppointmentID: appointmentID,
		Complaint:     input.Complaint,
		History:       input.History,
		Examination:   input.Examination,
		Diagnoses:     diagnoses,
		FollowUpDate:  input.FollowUpDate,
		Referral:      input.Referral,
		Notes:         input.Notes,
		ConductedBy:   actor,
	})
	if err != nil {
		return nil, err
	}

	outcome := &ConsultationOutcome{Appointment: updatedAppt, Consultation: consultation}

	if len(input.Medications) > 0 {
		lines := make([]MedicationLine, len(input.Medications))
		copy(lines, input.Medications)
		for i := range lines {
			lines[i].Dispensed = false
		}
		outcome.Prescription, err = e.prescriptions.Create(&Prescription{
			AppointmentID:  appointmentID,
			ConsultationID: consultation.ID,
			Medications:    lines,
		})
		if err != nil {
			return nil, err
		}
	}

	if len(input.LabTests) > 0 {
		outcome.LabOrder, err = e.labOrders.Create(&LabOrder{
			AppointmentID:  appointmentID,
			ConsultationID: consultation.ID,
			Tests:          input.LabTests,
			Status:         LabPending,
		})
		if err != nil {
			return nil, err
		}
	}

	if entry, ok := e.queue.FindOne(byAppointment[*QueueEntry](appointmentID)); ok {
		if _, _, err := e.queue.Update(entry.ID, func(q *QueueEntry) { q.Completed = true }); err != nil {
			return nil, err
		}
	}

	e.updateWaitingGauge()
	return outcome, nil
}

// StartLab moves a pending order to in-progress.
func (e *Engine) StartLab(orderID, actor string) (*LabOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.labOrders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != LabPending {
		return nil, apperror.Precondition("lab order is not pending", map[string]string{
			"status": string(order.Status),
		})
	}

	updated, ok, err := e.labOrders.Update(orderID, func(o *LabOrder) { o.Status = LabInProgress })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("lab order", orderID)
	}
	e.logger.Info().Str("lab_order_id", orderID).Str("actor", actor).Msg("lab order started")
	return updated, nil
}

// RecordLabResult stores one test result on an in-progress order. Partial
// progress is valid and persisted incrementally.
func (e *Engine) RecordLabResult(orderID, testCode, value, notes, actor string) (*LabOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.labOrders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != LabInProgress {
		return nil, apperror.Precondition("lab order is not in progress", map[string]string{
			"status": string(order.Status),
		})
	}
	known := false
	for _, test := range order.Tests {
		if test.Code == testCode {
			known = true
			break
		}
	}
	if !known {
		return nil, apperror.Validation("test is not part of this order", map[string]string{"testCode": testCode})
	}

	now := e.now()
	updated, ok, err := e.labOrders.Update(orderID, func(o *LabOrder) {
		if o.Results == nil {
			o.Results = make(map[string]LabResult)
		}
		o.Results[testCode] = LabResult{Value: value, Notes: notes, RecordedAt: now, RecordedBy: actor}
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("lab order", orderID)
	}
	return updated, nil
}

// CompleteLab closes an order once every test has a result and flags the
// appointment for clinician review.
func (e *Engine) CompleteLab(orderID, actor string) (*LabOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.labOrders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == LabCompleted {
		return nil, apperror.Precondition("lab order is already completed", nil)
	}
	if missing := order.MissingResults(); len(missing) > 0 {
		details := map[string]string{}
		for _, code := range missing {
			details[code] = "result missing"
		}
		return nil, apperror.Precondition("not all tests have results", details)
	}

	appt, err := e.appointments.Get(order.AppointmentID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	updated, ok, err := e.labOrders.Update(orderID, func(o *LabOrder) {
		o.Status = LabCompleted
		o.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("lab order", orderID)
	}

	if _, err := e.updateAppointment(appt, func(a *appointment.Appointment) {
		a.Status = appointment.StatusLabResultsReady
		a.LabCompletedAt = &now
	}); err != nil {
		return nil, err
	}

	e.logger.Info().Str("lab_order_id", orderID).Str("actor", actor).Msg("lab order completed")
	return updated, nil
}

// MarkLineDispensed marks one medication line as handed over.
func (e *Engine) MarkLineDispensed(prescriptionID string, lineIndex int, actor string) (*Prescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rx, err := e.prescriptions.Get(prescriptionID)
	if err != nil {
		return nil, err
	}
	if rx.Dispensed {
		return nil, apperror.Precondition("prescription is already dispensed", nil)
	}
	if lineIndex < 0 || lineIndex >= len(rx.Medications) {
		return nil, apperror.Validation("medication line does not exist", map[string]string{
			"lineIndex": strconv.Itoa(lineIndex),
		})
	}

	updated, ok, err := e.prescriptions.Update(prescriptionID, func(p *Prescription) {
		p.Medications[lineIndex].Dispensed = true
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("prescription", prescriptionID)
	}
	return updated, nil
}

// Dispense closes a prescription once every line is marked dispensed and
// completes the visit.
func (e *Engine) Dispense(prescriptionID, actor string) (*Prescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rx, err := e.prescriptions.Get(prescriptionID)
	if err != nil {
		return nil, err
	}
	if rx.Dispensed {
		return nil, apperror.Precondition("prescription is already dispensed", nil)
	}
	undispensed := map[string]string{}
	for i, line := range rx.Medications {
		if !line.Dispensed {
			undispensed[strconv.Itoa(i)] = line.Name
		}
	}
	if len(undispensed) > 0 {
		return nil, apperror.Precondition("all medication lines must be dispensed first", undispensed)
	}

	appt, err := e.appointments.Get(rx.AppointmentID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	updated, ok, err := e.prescriptions.Update(prescriptionID, func(p *Prescription) {
		p.Dispensed = true
		p.DispensedAt = &now
		p.DispensedBy = actor
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("prescription", prescriptionID)
	}

	if _, err := e.updateAppointment(appt, func(a *appointment.Appointment) {
		a.Status = appointment.StatusCompleted
		a.CompletedAt = &now
		a.CompletedBy = actor
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func (e *Engine) TriageByAppointment(appointmentID string) (*TriageRecord, error) {
	if rec, ok := e.triage.FindOne(byAppointment[*TriageRecord](appointmentID)); ok {
		return rec, nil
	}
	return nil, apperror.NotFound("triage record", appointmentID)
}

func (e *Engine) ConsultationByAppointment(appointmentID string) (*Consultation, error) {
	if rec, ok := e.consultations.FindOne(byAppointment[*Consultation](appointmentID)); ok {
		return rec, nil
	}
	return nil, apperror.NotFound("consultation", appointmentID)
}

func (e *Engine) PrescriptionByAppointment(appointmentID string) (*Prescription, error) {
	if rec, ok := e.prescriptions.FindOne(byAppointment[*Prescription](appointmentID)); ok {
		return rec, nil
	}
	return nil, apperror.NotFound("prescription", appointmentID)
}

func (e *Engine) LabOrderByAppointment(appointmentID string) (*LabOrder, error) {
	if rec, ok := e.labOrders.FindOne(byAppointment[*LabOrder](appointmentID)); ok {
		return rec, nil
	}
	return nil, apperror.NotFound("lab order", appointmentID)
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

type hasAppointment interface {
	appointmentID() string
}

func (t *TriageRecord) appointmentID() string { return t.AppointmentID }
func (q *QueueEntry) appointmentID() string   { return q.AppointmentID }
func (c *Consultation) appointmentID() string { return c.AppointmentID }
func (p *Prescription) appointmentID() string { return p.AppointmentID }
func (o *LabOrder) appointmentID() string     { return o.AppointmentID }

func byAppointment[T hasAppointment](id string) func(T) bool {
	return func(rec T) bool { return rec.appointmentID() == id }
}

func (e *Engine) updateAppointment(appt *appointment.Appointment, apply func(*appointment.Appointment)) (*appointment.Appointment, error) {
	from := appt.Status
	updated, ok, err := e.appointments.Update(appt.ID, apply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("appointment", appt.ID)
	}
	transitionsTotal.WithLabelValues(string(from), string(updated.Status)).Inc()
	e.logger.Info().
		Str("appointment_id", appt.ID).
		Str("from", string(from)).
		Str("to", string(updated.Status)).
		Msg("appointment transition")
	return updated, nil
}

func (e *Engine) wrongStatus(appt *appointment.Appointment, expected ...appointment.Status) error {
	want := ""
	for i, s := range expected {
		if i > 0 {
			want += "|"
		}
		want += string(s)
	}
	return apperror.Precondition("appointment is not in a legal status for this transition", map[string]string{
		"appointmentId": appt.ID,
		"current":       string(appt.Status),
		"expected":      want,
	})
}

func (e *Engine) nextWaiting() *QueueEntry {
	waiting := e.queue.Find(func(q *QueueEntry) bool { return q.Waiting() })
	var best *QueueEntry
	for _, q := range waiting {
		if best == nil {
			best = q
			continue
		}
		if q.Urgency.rank() < best.Urgency.rank() ||
			(q.Urgency.rank() == best.Urgency.rank() && q.Position < best.Position) {
			best = q
		}
	}
	return best
}

func (e *Engine) updateWaitingGauge() {
	waitingGauge.Set(float64(e.queue.Count(func(q *QueueEntry) bool { return q.Waiting() })))
}

func dedupeDiagnoses(in []Diagnosis) []Diagnosis {
	seen := make(map[string]struct{}, len(in))
	out := make([]Diagnosis, 0, len(in))
	for _, d := range in {
		if _, dup := seen[d.Code]; dup {
			continue
		}
		seen[d.Code] = struct{}{}
		out = append(out, d)
	}
	return out
}
