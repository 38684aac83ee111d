package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/flatrec"
	"github.com/clinicdesk/clinicdesk/internal/platform/storage"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	col := store.NewCollection[*Appointment](CollectionKey, storage.NewMemoryMedium())
	return NewService(col)
}

func TestCreate_NormalizesStatus(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(&Appointment{
		PatientID:   "p1",
		ScheduledAt: time.Now().Add(time.Hour),
		Status:      StatusCompleted, // callers cannot pre-set status
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusScheduled {
		t.Errorf("status = %q, want scheduled", created.Status)
	}
}

func TestCreate_WalkInDefaultsScheduledAt(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(&Appointment{PatientID: "p1", IsWalkIn: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ScheduledAt.IsZero() {
		t.Error("walk-in must get a scheduled time")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Create(&Appointment{ScheduledAt: time.Now()}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("missing patientId: got %v", err)
	}
	if _, err := svc.Create(&Appointment{PatientID: "p1"}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("booked appointment without time: got %v", err)
	}
}

func TestList_Filters(t *testing.T) {
	svc := newTestService(t)
	svc.Create(&Appointment{PatientID: "p1", ScheduledAt: time.Now()})
	svc.Create(&Appointment{PatientID: "p2", ScheduledAt: time.Now()})

	if got := svc.List("", "p1"); len(got) != 1 || got[0].PatientID != "p1" {
		t.Errorf("patient filter: %+v", got)
	}
	if got := svc.List(StatusScheduled, ""); len(got) != 2 {
		t.Errorf("status filter returned %d", len(got))
	}
	if got := svc.List(StatusCompleted, ""); len(got) != 0 {
		t.Errorf("completed filter returned %d", len(got))
	}
}

func TestPatch_CannotTouchStatus(t *testing.T) {
	svc := newTestService(t)
	created, _ := svc.Create(&Appointment{PatientID: "p1", ScheduledAt: time.Now()})

	notes := "rescheduled twice"
	updated, err := svc.Update(created.ID, Patch{Notes: &notes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != StatusScheduled {
		t.Errorf("status changed through patch: %q", updated.Status)
	}
	if updated.Notes != notes {
		t.Errorf("notes = %q", updated.Notes)
	}
}

func TestImportRows_UnknownStatusFallsBack(t *testing.T) {
	svc := newTestService(t)

	n, err := svc.ImportRows([]flatrec.Row{
		{"patientId": "p1", "scheduledAt": "2026-03-01T09:00:00Z", "status": "teleported"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 1 {
		t.Errorf("imported = %d", n)
	}
	appts := svc.List("", "")
	if appts[0].Status != StatusScheduled {
		t.Errorf("status = %q, want scheduled fallback", appts[0].Status)
	}
}

func TestStatus_Vocabulary(t *testing.T) {
	if !StatusLabResultsReady.Valid() {
		t.Error("lab_results_ready must be part of the vocabulary")
	}
	if Status("teleported").Valid() {
		t.Error("unknown status must be invalid")
	}
	for _, s := range []Status{StatusCompleted, StatusNoShow, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	if StatusLab.Terminal() {
		t.Error("lab must not be terminal")
	}
}
