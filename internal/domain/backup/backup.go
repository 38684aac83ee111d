// Package backup assembles and restores full-application backup bundles
// covering patients, inventory, appointments and settings.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/inventory"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/domain/settings"
	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// Version identifies the bundle layout.
const Version = "1"

// Bundle is the portable backup format. Collection payloads stay raw so a
// bundle round-trips byte-for-byte regardless of entity fields.
type Bundle struct {
	Version   string     `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	Data      BundleData `json:"data"`
}

type BundleData struct {
	Patients     json.RawMessage `json:"patients,omitempty"`
	Inventory    json.RawMessage `json:"inventory,omitempty"`
	Appointments json.RawMessage `json:"appointments,omitempty"`
	Settings     json.RawMessage `json:"settings,omitempty"`
}

type Manager struct {
	patients     *store.Collection[*patient.Patient]
	inventory    *store.Collection[*inventory.Item]
	appointments *store.Collection[*appointment.Appointment]
	settings     *settings.Service
	now          func() time.Time
}

func NewManager(
	patients *store.Collection[*patient.Patient],
	inventory *store.Collection[*inventory.Item],
	appointments *store.Collection[*appointment.Appointment],
	settingsSvc *settings.Service,
) *Manager {
	return &Manager{
		patients:     patients,
		inventory:    inventory,
		appointments: appointments,
		settings:     settingsSvc,
		now:          time.Now,
	}
}

// Export assembles a bundle from the current state of every covered
// collection.
func (m *Manager) Export() (*Bundle, error) {
	patients, err := m.patients.ExportSnapshot()
	if err != nil {
		return nil, err
	}
	items, err := m.inventory.ExportSnapshot()
	if err != nil {
		return nil, err
	}
	appts, err := m.appointments.ExportSnapshot()
	if err != nil {
		return nil, err
	}
	cfg, err := m.settings.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Bundle{
		Version:   Version,
		CreatedAt: m.now(),
		Data: BundleData{
			Patients:     patients,
			Inventory:    items,
			Appointments: appts,
			Settings:     cfg,
		},
	}, nil
}

// Restore validates the raw bundle and replaces every collection it
// includes. All shape violations are collected and returned together; a
// bundle with any violation mutates nothing.
func (m *Manager) Restore(raw []byte) error {
	var shell struct {
		Version string           `json:"version"`
		Data    *json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &shell); err != nil {
		return apperror.Validation("backup bundle is not valid JSON", nil)
	}
	if shell.Data == nil {
		return apperror.Validation("backup bundle is invalid", map[string]string{"data": "missing"})
	}

	var data BundleData
	if err := json.Unmarshal(*shell.Data, &data); err != nil {
		return apperror.Validation("backup bundle is invalid", map[string]string{"data": "must be an object"})
	}

	violations := map[string]string{}

	var patients []*patient.Patient
	if data.Patients != nil {
		if !startsWith(data.Patients, '[') {
			violations["patients"] = "must be an array"
		} else if err := json.Unmarshal(data.Patients, &patients); err != nil {
			violations["patients"] = fmt.Sprintf("malformed records: %v", err)
		}
	}
	var items []*inventory.Item
	if data.Inventory != nil {
		if !startsWith(data.Inventory, '[') {
			violations["inventory"] = "must be an array"
		} else if err := json.Unmarshal(data.Inventory, &items); err != nil {
			violations["inventory"] = fmt.Sprintf("malformed records: %v", err)
		}
	}
	var appts []*appointment.Appointment
	if data.Appointments != nil {
		if !startsWith(data.Appointments, '[') {
			violations["appointments"] = "must be an array"
		} else if err := json.Unmarshal(data.Appointments, &appts); err != nil {
			violations["appointments"] = fmt.Sprintf("malformed records: %v", err)
		}
	}
	if data.Settings != nil && !startsWith(data.Settings, '{') {
		violations["settings"] = "must be an object"
	}

	if len(violations) > 0 {
		return apperror.Validation("backup bundle is invalid", violations)
	}

	if data.Patients != nil {
		if patients == nil {
			patients = []*patient.Patient{}
		}
		if err := m.patients.ReplaceAll(patients); err != nil {
			return err
		}
	}
	if data.Inventory != nil {
		if items == nil {
			items = []*inventory.Item{}
		}
		if err := m.inventory.ReplaceAll(items); err != nil {
			return err
		}
	}
	if data.Appointments != nil {
		if appts == nil {
			appts = []*appointment.Appointment{}
		}
		if err := m.appointments.ReplaceAll(appts); err != nil {
			return err
		}
	}
	if data.Settings != nil {
		if err := m.settings.Restore(data.Settings); err != nil {
			return err
		}
	}
	return nil
}

func startsWith(raw json.RawMessage, b byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == b
}
