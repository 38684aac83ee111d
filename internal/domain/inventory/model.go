package inventory

import (
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

// CollectionKey is the store key for inventory items.
const CollectionKey = "inventory"

type Item struct {
	store.Meta
	Name         string     `json:"name"`
	Category     string     `json:"category,omitempty"`
	Quantity     int        `json:"quantity"`
	Unit         string     `json:"unit,omitempty"`
	UnitPrice    float64    `json:"unitPrice,omitempty"`
	ReorderLevel int        `json:"reorderLevel,omitempty"`
	BatchNumber  string     `json:"batchNumber,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
}

// LowStock reports whether the item is at or below its reorder level.
func (i *Item) LowStock() bool {
	return i.ReorderLevel > 0 && i.Quantity <= i.ReorderLevel
}

type Patch struct {
	Name         *string    `json:"name,omitempty"`
	Category     *string    `json:"category,omitempty"`
	Quantity     *int       `json:"quantity,omitempty"`
	Unit         *string    `json:"unit,omitempty"`
	UnitPrice    *float64   `json:"unitPrice,omitempty"`
	ReorderLevel *int       `json:"reorderLevel,omitempty"`
	BatchNumber  *string    `json:"batchNumber,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
}

func (p Patch) Apply(rec *Item) {
	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.Category != nil {
		rec.Category = *p.Category
	}
	if p.Quantity != nil {
		rec.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		rec.Unit = *p.Unit
	}
	if p.UnitPrice != nil {
		rec.UnitPrice = *p.UnitPrice
	}
	if p.ReorderLevel != nil {
		rec.ReorderLevel = *p.ReorderLevel
	}
	if p.BatchNumber != nil {
		rec.BatchNumber = *p.BatchNumber
	}
	if p.ExpiryDate != nil {
		rec.ExpiryDate = p.ExpiryDate
	}
}
