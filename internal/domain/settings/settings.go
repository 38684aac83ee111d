// Package settings holds the clinic profile: a single well-known record in
// its own collection, included as an object in backup bundles.
package settings

import (
	"encoding/json"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// CollectionKey is the store key for the settings collection.
const CollectionKey = "settings"

// RecordID is the fixed identifier of the single settings record.
const RecordID = "settings"

type Settings struct {
	store.Meta
	ClinicName  string   `json:"clinicName"`
	Address     string   `json:"address,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	OpeningTime string   `json:"openingTime,omitempty"`
	ClosingTime string   `json:"closingTime,omitempty"`
	WorkingDays []string `json:"workingDays,omitempty"`
	Currency    string   `json:"currency,omitempty"`
}

// Defaults returns the seed record used on first run.
func Defaults() *Settings {
	s := &Settings{
		ClinicName:  "ClinicDesk",
		OpeningTime: "08:00",
		ClosingTime: "17:00",
		WorkingDays: []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
		Currency:    "USD",
	}
	s.ID = RecordID
	return s
}

type Patch struct {
	ClinicName  *string  `json:"clinicName,omitempty"`
	Address     *string  `json:"address,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
	OpeningTime *string  `json:"openingTime,omitempty"`
	ClosingTime *string  `json:"closingTime,omitempty"`
	WorkingDays []string `json:"workingDays,omitempty"`
	Currency    *string  `json:"currency,omitempty"`
}

func (p Patch) Apply(rec *Settings) {
	if p.ClinicName != nil {
		rec.ClinicName = *p.ClinicName
	}
	if p.Address != nil {
		rec.Address = *p.Address
	}
	if p.Phone != nil {
		rec.Phone = *p.Phone
	}
	if p.OpeningTime != nil {
		rec.OpeningTime = *p.OpeningTime
	}
	if p.ClosingTime != nil {
		rec.ClosingTime = *p.ClosingTime
	}
	if p.WorkingDays != nil {
		rec.WorkingDays = p.WorkingDays
	}
	if p.Currency != nil {
		rec.Currency = *p.Currency
	}
}

type Service struct {
	col *store.Collection[*Settings]
}

func NewService(col *store.Collection[*Settings]) *Service {
	return &Service{col: col}
}

// Get returns the settings record, falling back to defaults when the
// collection is empty.
func (s *Service) Get() *Settings {
	if rec, ok := s.col.FindOne(func(*Settings) bool { return true }); ok {
		return rec
	}
	return Defaults()
}

// Update merges the patch into the settings record, creating it on first
// write.
func (s *Service) Update(patch Patch) (*Settings, error) {
	current := s.Get()
	if s.col.Count(nil) == 0 {
		patch.Apply(current)
		return s.col.Create(current)
	}
	rec, ok, err := s.col.Update(current.ID, func(rec *Settings) { patch.Apply(rec) })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("settings", current.ID)
	}
	return rec, nil
}

// Snapshot returns the settings record as a JSON object for backup
// bundles.
func (s *Service) Snapshot() (json.RawMessage, error) {
	return json.Marshal(s.Get())
}

// Restore replaces the settings record with the object from a backup
// bundle.
func (s *Service) Restore(raw json.RawMessage) error {
	var rec Settings
	if err := json.Unmarshal(raw, &rec); err != nil {
		return apperror.Validation("settings must be an object", nil)
	}
	if rec.ID == "" {
		rec.ID = RecordID
	}
	return s.col.ReplaceAll([]*Settings{&rec})
}
