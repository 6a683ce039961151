// Package ledger reconciles import-shipment stock against the allocation
// rows recorded on every other export shipment's import-selection step. The
// ledger is rebuilt from a full scan of sibling shipments, so it can never
// be stale; Index adds the derived cache that keeps the same semantics
// without rescanning on every read.
package ledger

import (
	"fmt"
	"sort"

	"freightline/internal/schema"
	"freightline/internal/workflow"
)

// Entry is one exporting shipment's aggregated draw against an import
// shipment.
type Entry struct {
	SourceShipmentID   string  `json:"source_shipment_id,omitempty"`
	ReferenceKey       string  `json:"reference_key,omitempty"`
	Quantity           float64 `json:"allocated_quantity"`
	Weight             float64 `json:"allocated_weight"`
	ExportShipmentID   string  `json:"export_shipment_id"`
	ExportShipmentCode string  `json:"export_shipment_code,omitempty"`
	ExportDate         string  `json:"export_date,omitempty"`
}

// Bucket aggregates all draws that resolved to one correlation key, with an
// itemized history keyed by exporting shipment.
type Bucket struct {
	Quantity float64
	Weight   float64
	History  map[string]Entry
}

// Row is one allocation row as recorded on an export shipment.
type Row struct {
	SourceShipmentID string
	Reference        string
	BOENumber        string
	Quantity         float64
	Weight           float64
	ExportDate       string
}

// ExportAllocations is one sibling export shipment's allocation rows.
type ExportAllocations struct {
	ShipmentID   string
	ShipmentCode string
	Rows         []Row
}

// Ledger maps correlation keys (source shipment id, reference text, or BOE
// number, in that priority) to allocation buckets.
type Ledger struct {
	buckets map[string]*Bucket
}

// RowsFromValues extracts allocation rows from an import-selection step's
// value tree. Rows with no correlation key are skipped; non-numeric
// quantities read as zero.
func RowsFromValues(values schema.Values) []Row {
	items, _ := values[workflow.FieldAllocations].([]any)
	var out []Row
	for _, item := range items {
		m, _ := item.(map[string]any)
		if m == nil {
			continue
		}
		row := Row{
			SourceShipmentID: text(m, workflow.FieldSourceShipmentID),
			Reference:        text(m, workflow.FieldReference),
			BOENumber:        text(m, workflow.FieldBOENumber),
			ExportDate:       text(m, workflow.FieldExportDate),
		}
		row.Quantity, _ = schema.Number(text(m, workflow.FieldAllocatedQuantity))
		row.Weight, _ = schema.Number(text(m, workflow.FieldAllocatedWeight))
		if row.key() == "" {
			continue
		}
		out = append(out, row)
	}
	return out
}

// key is the row's correlation key, in priority order: explicit source
// shipment id, then reference text, then BOE number.
func (r Row) key() string {
	if r.SourceShipmentID != "" {
		return r.SourceShipmentID
	}
	if r.Reference != "" {
		return r.Reference
	}
	return r.BOENumber
}

// Build aggregates every sibling export's rows into buckets. Multiple rows
// from the same exporter against the same key are summed into one history
// entry, so one exporter is never counted twice under a single key.
func Build(exports []ExportAllocations) *Ledger {
	l := &Ledger{buckets: map[string]*Bucket{}}
	for _, exp := range exports {
		exporterKey := exp.ShipmentID
		if exporterKey == "" {
			exporterKey = exp.ShipmentCode
		}
		for _, row := range exp.Rows {
			key := row.key()
			if key == "" {
				continue
			}
			b := l.buckets[key]
			if b == nil {
				b = &Bucket{History: map[string]Entry{}}
				l.buckets[key] = b
			}
			b.Quantity += row.Quantity
			b.Weight += row.Weight
			e := b.History[exporterKey]
			e.ExportShipmentID = exp.ShipmentID
			e.ExportShipmentCode = exp.ShipmentCode
			e.Quantity += row.Quantity
			e.Weight += row.Weight
			if e.SourceShipmentID == "" {
				e.SourceShipmentID = row.SourceShipmentID
			}
			if e.ReferenceKey == "" {
				e.ReferenceKey = key
			}
			if e.ExportDate == "" || (row.ExportDate != "" && row.ExportDate > e.ExportDate) {
				e.ExportDate = row.ExportDate
			}
			b.History[exporterKey] = e
		}
	}
	return l
}

// ImportRef identifies an import shipment and its imported totals. Code and
// BOE number act as fallback correlation keys for rows that lack an
// explicit source shipment id.
type ImportRef struct {
	ShipmentID       string
	Code             string
	BOENumber        string
	ImportedQuantity float64
	ImportedWeight   float64
}

// Remaining is the reconciled view for one import shipment. Remaining
// values are raw (negative when over-allocated); OverAllocated flags it and
// summaries clamp at the presentation edge only.
type Remaining struct {
	ImportedQuantity  float64 `json:"imported_quantity"`
	ImportedWeight    float64 `json:"imported_weight"`
	ConsumedQuantity  float64 `json:"consumed_quantity"`
	ConsumedWeight    float64 `json:"consumed_weight"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	RemainingWeight   float64 `json:"remaining_weight"`
	OverAllocated     bool    `json:"over_allocated,omitempty"`
	History           []Entry `json:"history"`
}

// RemainingStock reconciles ref against every bucket it can be addressed
// by. Entries from one exporter reached through different keys are merged
// into a single history entry with summed quantity and weight.
func (l *Ledger) RemainingStock(ref ImportRef) Remaining {
	merged := map[string]Entry{}
	for _, key := range dedupKeys(ref.ShipmentID, ref.Code, ref.BOENumber) {
		b, ok := l.buckets[key]
		if !ok {
			continue
		}
		for exporter, e := range b.History {
			m := merged[exporter]
			m.ExportShipmentID = e.ExportShipmentID
			m.ExportShipmentCode = e.ExportShipmentCode
			m.Quantity += e.Quantity
			m.Weight += e.Weight
			if m.SourceShipmentID == "" {
				m.SourceShipmentID = e.SourceShipmentID
			}
			if m.ReferenceKey == "" {
				m.ReferenceKey = e.ReferenceKey
			}
			if e.ExportDate > m.ExportDate {
				m.ExportDate = e.ExportDate
			}
			merged[exporter] = m
		}
	}
	out := Remaining{
		ImportedQuantity: ref.ImportedQuantity,
		ImportedWeight:   ref.ImportedWeight,
		History:          make([]Entry, 0, len(merged)),
	}
	for _, e := range merged {
		out.ConsumedQuantity += e.Quantity
		out.ConsumedWeight += e.Weight
		out.History = append(out.History, e)
	}
	sort.Slice(out.History, func(i, j int) bool {
		if out.History[i].ExportShipmentID != out.History[j].ExportShipmentID {
			return out.History[i].ExportShipmentID < out.History[j].ExportShipmentID
		}
		return out.History[i].ExportShipmentCode < out.History[j].ExportShipmentCode
	})
	out.RemainingQuantity = ref.ImportedQuantity - out.ConsumedQuantity
	out.RemainingWeight = ref.ImportedWeight - out.ConsumedWeight
	out.OverAllocated = out.RemainingQuantity < 0 || out.RemainingWeight < 0
	return out
}

// ImportWarnings reports every import shipment whose stock is
// over-allocated across the fleet. The raw negative remainders stay
// available through RemainingStock; this is the warning-flagged form.
func (l *Ledger) ImportWarnings(refs []ImportRef) []string {
	var out []string
	for _, ref := range refs {
		rem := l.RemainingStock(ref)
		if !rem.OverAllocated {
			continue
		}
		name := ref.Code
		if name == "" {
			name = ref.ShipmentID
		}
		out = append(out, fmt.Sprintf("import %s over-allocated: %.2f quantity and %.2f weight remaining",
			name, rem.RemainingQuantity, rem.RemainingWeight))
	}
	return out
}

// ClampZero floors a remaining value for summary display.
func ClampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func dedupKeys(keys ...string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func text(m map[string]any, field string) string {
	s, _ := m[field].(string)
	return s
}
