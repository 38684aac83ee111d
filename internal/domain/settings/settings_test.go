package settings

import (
	"testing"

	"github.com/clinicdesk/clinicdesk/internal/platform/storage"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	col := store.NewCollection[*Settings](CollectionKey, storage.NewMemoryMedium())
	return NewService(col)
}

func TestGet_FallsBackToDefaults(t *testing.T) {
	svc := newTestService(t)

	got := svc.Get()
	if got.ClinicName != "ClinicDesk" {
		t.Errorf("clinicName = %q", got.ClinicName)
	}
	if got.OpeningTime != "08:00" {
		t.Errorf("openingTime = %q", got.OpeningTime)
	}
}

func TestUpdate_CreatesThenMerges(t *testing.T) {
	svc := newTestService(t)

	name := "Sunrise Family Clinic"
	updated, err := svc.Update(Patch{ClinicName: &name})
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if updated.ClinicName != name {
		t.Errorf("clinicName = %q", updated.ClinicName)
	}
	if updated.Currency != "USD" {
		t.Errorf("defaults must survive first write, currency = %q", updated.Currency)
	}

	currency := "KES"
	updated, err = svc.Update(Patch{Currency: &currency})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if updated.ClinicName != name || updated.Currency != "KES" {
		t.Errorf("merge lost fields: %+v", updated)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	name := "Sunrise Family Clinic"
	svc.Update(Patch{ClinicName: &name})

	raw, err := svc.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	other := newTestService(t)
	if err := other.Restore(raw); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := other.Get(); got.ClinicName != name {
		t.Errorf("restored clinicName = %q", got.ClinicName)
	}
}
