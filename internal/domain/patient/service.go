package patient

import (
	"encoding/json"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/flatrec"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

type Service struct {
	patients *store.Collection[*Patient]
}

func NewService(patients *store.Collection[*Patient]) *Service {
	return &Service{patients: patients}
}

func (s *Service) Create(p *Patient) (*Patient, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, apperror.Validation("patient name is required", nil)
	}
	return s.patients.Create(p)
}

func (s *Service) Get(id string) (*Patient, error) {
	return s.patients.Get(id)
}

// List returns all patients, optionally filtered by a case-insensitive
// search over name and phone.
func (s *Service) List(search string) []*Patient {
	if search == "" {
		return s.patients.List()
	}
	needle := strings.ToLower(search)
	return s.patients.Find(func(p *Patient) bool {
		return strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(p.Phone, search)
	})
}

func (s *Service) Update(id string, patch Patch) (*Patient, error) {
	rec, ok, err := s.patients.Update(id, func(p *Patient) { patch.Apply(p) })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("patient", id)
	}
	return rec, nil
}

func (s *Service) Delete(id string) (bool, error) {
	return s.patients.Remove(id)
}

// ImportRows converts already-parsed flat rows into patient records and
// merges them into the collection. Rows with an "id" column upsert by id.
func (s *Service) ImportRows(rows []flatrec.Row) (int, error) {
	recs := make([]*Patient, 0, len(rows))
	for _, row := range rows {
		p := &Patient{
			Name:        row.String("name"),
			DateOfBirth: row.Time("dateOfBirth"),
			Gender:      row.String("gender"),
			Phone:       row.String("phone"),
			Address:     row.String("address"),
			BloodGroup:  row.String("bloodGroup"),
			Notes:       row.String("notes"),
		}
		p.ID = row.String("id")
		if allergies := row.String("allergies"); allergies != "" {
			for _, a := range strings.Split(allergies, ";") {
				if a = strings.TrimSpace(a); a != "" {
					p.Allergies = append(p.Allergies, a)
				}
			}
		}
		if created := row.Time("createdAt"); created != nil {
			p.CreatedAt = *created
		}
		recs = append(recs, p)
	}
	return s.patients.ImportMerge(recs)
}

// ExportRows flattens every patient into string-keyed rows.
func (s *Service) ExportRows() []flatrec.Row {
	patients := s.patients.List()
	rows := make([]flatrec.Row, 0, len(patients))
	for _, p := range patients {
		row := flatrec.Row{
			"id":         p.ID,
			"name":       p.Name,
			"gender":     p.Gender,
			"phone":      p.Phone,
			"address":    p.Address,
			"bloodGroup": p.BloodGroup,
			"allergies":  strings.Join(p.Allergies, ";"),
			"notes":      p.Notes,
			"createdAt":  p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if p.DateOfBirth != nil {
			row["dateOfBirth"] = p.DateOfBirth.Format("2006-01-02")
		}
		rows = append(rows, row)
	}
	return rows
}

// Snapshot exposes the collection payload for backup bundles.
func (s *Service) Snapshot() (json.RawMessage, error) {
	return s.patients.ExportSnapshot()
}

// Count reports the collection size, for the health endpoint.
func (s *Service) Count() int {
	return s.patients.Count(nil)
}
