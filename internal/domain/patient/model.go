package patient

import (
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// CollectionKey is the store key for patient records.
const CollectionKey = "patients"

type Patient struct {
	store.Meta
	Name        string     `json:"name"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Address     string     `json:"address,omitempty"`
	BloodGroup  string     `json:"bloodGroup,omitempty"`
	Allergies   []string   `json:"allergies,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Patch names the fields a caller may change on an existing patient. Nil
// fields are left untouched.
type Patch struct {
	Name        *string    `json:"name,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Address     *string    `json:"address,omitempty"`
	BloodGroup  *string    `json:"bloodGroup,omitempty"`
	Allergies   []string   `json:"allergies,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// Apply merges the patch into rec field by field.
func (p Patch) Apply(rec *Patient) {
	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.DateOfBirth != nil {
		rec.DateOfBirth = p.DateOfBirth
	}
	if p.Gender != nil {
		rec.Gender = *p.Gender
	}
	if p.Phone != nil {
		rec.Phone = *p.Phone
	}
	if p.Address != nil {
		rec.Address = *p.Address
	}
	if p.BloodGroup != nil {
		rec.BloodGroup = *p.BloodGroup
	}
	if p.Allergies != nil {
		rec.Allergies = p.Allergies
	}
	if p.Notes != nil {
		rec.Notes = *p.Notes
	}
}
