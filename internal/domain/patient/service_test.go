package patient

import (
	"errors"
	"testing"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/flatrec"
	"github.com/clinicdesk/clinicdesk/internal/platform/storage"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	col := store.NewCollection[*Patient](CollectionKey, storage.NewMemoryMedium())
	return NewService(col)
}

func TestCreate_RequiresName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(&Patient{Name: "   "})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(&Patient{Name: "Asha Patel", Phone: "555-0101"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Asha Patel" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestList_SearchFiltersByNameAndPhone(t *testing.T) {
	svc := newTestService(t)
	svc.Create(&Patient{Name: "Asha Patel", Phone: "555-0101"})
	svc.Create(&Patient{Name: "Ben Okafor", Phone: "555-0202"})

	if got := svc.List("asha"); len(got) != 1 || got[0].Name != "Asha Patel" {
		t.Errorf("search by name returned %d results", len(got))
	}
	if got := svc.List("555-0202"); len(got) != 1 || got[0].Name != "Ben Okafor" {
		t.Errorf("search by phone returned %d results", len(got))
	}
	if got := svc.List(""); len(got) != 2 {
		t.Errorf("empty search returned %d results", len(got))
	}
}

func TestUpdate_AppliesPatchOnly(t *testing.T) {
	svc := newTestService(t)
	created, _ := svc.Create(&Patient{Name: "Asha Patel", Phone: "555-0101"})

	phone := "555-0999"
	updated, err := svc.Update(created.ID, Patch{Phone: &phone})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Phone != "555-0999" {
		t.Errorf("phone = %q", updated.Phone)
	}
	if updated.Name != "Asha Patel" {
		t.Errorf("name must be untouched, got %q", updated.Name)
	}
}

func TestUpdate_MissingPatient(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Update("ghost", Patch{})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestImportRows_ParsesAndMerges(t *testing.T) {
	svc := newTestService(t)
	existing, _ := svc.Create(&Patient{Name: "Asha Patel", Phone: "555-0101"})

	n, err := svc.ImportRows([]flatrec.Row{
		{"id": existing.ID, "name": "Asha P. Patel", "allergies": "penicillin; latex"},
		{"name": "New Patient", "dateOfBirth": "1990-01-01"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Errorf("imported = %d, want 2", n)
	}
	if svc.Count() != 2 {
		t.Errorf("count = %d, want 2", svc.Count())
	}

	merged, _ := svc.Get(existing.ID)
	if merged.Name != "Asha P. Patel" {
		t.Errorf("merged name = %q", merged.Name)
	}
	if len(merged.Allergies) != 2 || merged.Allergies[0] != "penicillin" {
		t.Errorf("allergies = %v", merged.Allergies)
	}
	if merged.Phone != "555-0101" {
		t.Errorf("phone must survive merge, got %q", merged.Phone)
	}
}

func TestExportRows_RoundTripsThroughImport(t *testing.T) {
	svc := newTestService(t)
	svc.Create(&Patient{Name: "Asha Patel", Phone: "555-0101", Allergies: []string{"penicillin"}})

	rows := svc.ExportRows()
	if len(rows) != 1 {
		t.Fatalf("exported %d rows", len(rows))
	}

	other := newTestService(t)
	if _, err := other.ImportRows(rows); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	imported := other.List("")
	if len(imported) != 1 || imported[0].Name != "Asha Patel" || imported[0].Phone != "555-0101" {
		t.Errorf("round trip lost data: %+v", imported)
	}
	if len(imported[0].Allergies) != 1 {
		t.Errorf("allergies = %v", imported[0].Allergies)
	}
}
