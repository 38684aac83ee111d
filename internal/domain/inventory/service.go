package inventory

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/flatrec"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
)

type Service struct {
	items *store.Collection[*Item]
}

func NewService(items *store.Collection[*Item]) *Service {
	return &Service{items: items}
}

func (s *Service) Create(item *Item) (*Item, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, apperror.Validation("item name is required", nil)
	}
	if item.Quantity < 0 {
		return nil, apperror.Validation("quantity must not be negative", nil)
	}
	return s.items.Create(item)
}

func (s *Service) Get(id string) (*Item, error) {
	return s.items.Get(id)
}

// List returns all items, or only low-stock items when lowStock is set.
func (s *Service) List(lowStock bool) []*Item {
	if !lowStock {
		return s.items.List()
	}
	return s.items.Find(func(i *Item) bool { return i.LowStock() })
}

func (s *Service) Update(id string, patch Patch) (*Item, error) {
	rec, ok, err := s.items.Update(id, func(i *Item) { patch.Apply(i) })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("inventory item", id)
	}
	return rec, nil
}

func (s *Service) Delete(id string) (bool, error) {
	return s.items.Remove(id)
}

// Adjust changes an item's quantity by delta, rejecting adjustments that
// would take the stock below zero.
func (s *Service) Adjust(id string, delta int) (*Item, error) {
	current, err := s.items.Get(id)
	if err != nil {
		return nil, err
	}
	if current.Quantity+delta < 0 {
		return nil, apperror.Validation("adjustment would make quantity negative", map[string]string{
			"quantity": strconv.Itoa(current.Quantity),
			"delta":    strconv.Itoa(delta),
		})
	}
	rec, ok, err := s.items.Update(id, func(i *Item) { i.Quantity += delta })
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("inventory item", id)
	}
	return rec, nil
}

// ImportRows converts flat rows into items and merges them in. Numeric
// cells fall back to zero when malformed.
func (s *Service) ImportRows(rows []flatrec.Row) (int, error) {
	recs := make([]*Item, 0, len(rows))
	for _, row := range rows {
		item := &Item{
			Name:         row.String("name"),
			Category:     row.String("category"),
			Quantity:     row.Int("quantity"),
			Unit:         row.String("unit"),
			UnitPrice:    row.Float("unitPrice"),
			ReorderLevel: row.Int("reorderLevel"),
			BatchNumber:  row.String("batchNumber"),
			ExpiryDate:   row.Time("expiryDate"),
		}
		item.ID = row.String("id")
		if created := row.Time("createdAt"); created != nil {
			item.CreatedAt = *created
		}
		recs = append(recs, item)
	}
	return s.items.ImportMerge(recs)
}

// ExportRows flattens every item into string-keyed rows.
func (s *Service) ExportRows() []flatrec.Row {
	items := s.items.List()
	rows := make([]flatrec.Row, 0, len(items))
	for _, item := range items {
		row := flatrec.Row{
			"id":           item.ID,
			"name":         item.Name,
			"category":     item.Category,
			"quantity":     strconv.Itoa(item.Quantity),
			"unit":         item.Unit,
			"unitPrice":    strconv.FormatFloat(item.UnitPrice, 'f', -1, 64),
			"reorderLevel": strconv.Itoa(item.ReorderLevel),
			"batchNumber":  item.BatchNumber,
		}
		if item.ExpiryDate != nil {
			row["expiryDate"] = item.ExpiryDate.Format("2006-01-02")
		}
		rows = append(rows, row)
	}
	return rows
}

// Snapshot exposes the collection payload for backup bundles.
func (s *Service) Snapshot() (json.RawMessage, error) {
	return s.items.ExportSnapshot()
}

func (s *Service) Count() int {
	return s.items.Count(nil)
}
