package workflow

import (
	"fmt"
	"strings"

	"freightline/internal/fieldpath"
	"freightline/internal/schema"
)

// StepRecord is the slice of a stored step the deriver consumes: identity,
// parsed schema and values, and the stored status (only BLOCKED matters —
// an operator hold is preserved, everything else is recomputed).
type StepRecord struct {
	ID     string
	Name   string
	Status Status
	Schema schema.Schema
	Values schema.Values
}

// Progress counts completed loading rows against the expected truck count.
type Progress struct {
	Completed int `json:"completed"`
	Expected  int `json:"expected"`
}

// Result is one full derivation over a shipment's steps.
type Result struct {
	Statuses           map[string]Status `json:"statuses"`
	LoadingProgress    Progress          `json:"loading_progress"`
	CanFinalizeInvoice bool              `json:"can_finalize_invoice"`
	Warnings           []string          `json:"warnings,omitempty"`
}

// ComputeStatuses derives every catalog step's status from the shipment's
// current step values and attached documents. Steps with no record are
// treated as empty; a step with no answered data is PENDING, partial data is
// IN_PROGRESS, and a stored BLOCKED is never overridden. The computation is
// pure: calling it twice over the same snapshot yields identical results.
func (c Catalog) ComputeStatuses(steps map[string]StepRecord, docs schema.DocSet, route Route) Result {
	res := Result{Statuses: make(map[string]Status, len(c.Steps))}

	rec := func(name string) StepRecord {
		r, ok := steps[name]
		if !ok {
			return StepRecord{Name: name, Values: schema.Values{}}
		}
		if r.Values == nil {
			r.Values = schema.Values{}
		}
		return r
	}
	ctxFor := func(r StepRecord) schema.Context {
		return schema.Context{StepID: r.ID, Documents: docs}
	}

	plan := rec(StepPlanOverview)
	trucks := rec(StepTrucksDetails)
	loading := rec(StepLoadingDetails)
	imports := rec(StepImportSelection)
	invoice := rec(StepExportInvoice)
	stock := rec(StepStockView)
	customs := rec(StepCustomsAllocation)

	// Plan overview: order received + received date.
	planDone := flagAt(plan.Values, FieldOrderReceived) && textAt(plan.Values, FieldOrderReceivedDate) != ""
	res.Statuses[StepPlanOverview] = statusOf(plan, planDone)

	// Trucks details.
	active := activeTruckRows(trucks.Values)
	expected := expectedTruckCount(trucks.Values, len(active))
	booked := 0
	for _, row := range active {
		if ParseBookingStatus(rowText(row, FieldBookingStatus)) == BookingBooked && rowText(row, FieldBookingDate) != "" {
			booked++
		}
	}
	trucksDone := len(active) > 0 && booked >= expected
	res.Statuses[StepTrucksDetails] = statusOf(trucks, trucksDone)

	// Loading details: per-row completion against the expected truck count.
	completed := 0
	loadCtx := ctxFor(loading)
	for i, row := range groupRows(loading.Values, FieldLoads) {
		if loadRowComplete(row, i, loadCtx) {
			completed++
		}
	}
	res.LoadingProgress = Progress{Completed: completed, Expected: expected}
	loadingDone := expected > 0 && completed >= expected
	res.Statuses[StepLoadingDetails] = statusOf(loading, loadingDone)

	// Import shipment selection.
	allocRows := answeredRows(imports.Values, FieldAllocations)
	importsDone := len(allocRows) > 0
	importsAvailable := true
	for _, row := range allocRows {
		qty, _ := schema.Number(rowText(row, FieldImportedQuantity))
		weight, _ := schema.Number(rowText(row, FieldImportedWeight))
		available := schema.Truthy(rowText(row, FieldProcessedAvailable))
		if !available {
			importsAvailable = false
		}
		if rowText(row, FieldReference) == "" || !available || (qty <= 0 && weight <= 0) {
			importsDone = false
		}
	}
	res.Statuses[StepImportSelection] = statusOf(imports, importsDone)

	// Export invoice: gated on loading completion, import availability and
	// complete truck data; past the gate it needs number, date, an uploaded
	// invoice file and the finalized flag.
	trucksComplete := len(active) > 0
	for _, row := range active {
		if rowText(row, FieldTruckNumber) == "" || rowText(row, FieldDriverName) == "" || rowText(row, FieldDriverContact) == "" {
			trucksComplete = false
			break
		}
	}
	gate := loadingDone && importsAvailable && trucksComplete
	res.CanFinalizeInvoice = gate
	finalized := flagAt(invoice.Values, FieldFinalized)
	invoiceFields := textAt(invoice.Values, FieldInvoiceNumber) != "" &&
		textAt(invoice.Values, FieldInvoiceDate) != "" &&
		ctxFor(invoice).HasDocument(fieldpath.Path{fieldpath.Field(FieldInvoiceFile)}) &&
		finalized
	invoiceDone := gate && invoiceFields
	res.Statuses[StepExportInvoice] = statusOf(invoice, invoiceDone)
	if finalized && !gate {
		res.Warnings = append(res.Warnings, "export invoice finalized before loading, imports and truck data were complete")
	}

	// Stock view mirrors the invoice's state behind the same gate.
	stockStatus := res.Statuses[StepExportInvoice]
	if stock.Status == StatusBlocked {
		stockStatus = StatusBlocked
	}
	res.Statuses[StepStockView] = stockStatus

	// Customs agents allocation: every route-required checkpoint needs its
	// agent, and an answered clearance choice must be complete.
	spec := c.routeSpec(route)
	customsDone := len(spec.Checkpoints) > 0
	customsCtx := ctxFor(customs)
	for _, cp := range c.Checkpoints {
		if _, required := spec.Checkpoints[cp]; !required {
			continue
		}
		if !checkpointAllocationComplete(customs.Values, CheckpointKey(cp), customsCtx) {
			customsDone = false
		}
	}
	res.Statuses[StepCustomsAllocation] = statusOf(customs, customsDone)

	// Tracking checkpoints: terminal flag or date per route; checkpoints the
	// route never passes are vacuously done.
	for _, cp := range c.Checkpoints {
		r := rec(cp)
		term, onRoute := spec.Checkpoints[cp]
		done := true
		if onRoute {
			done = flagAt(r.Values, term.Flag) || textAt(r.Values, term.Date) != ""
		}
		res.Statuses[cp] = statusOf(r, done)
	}

	// Any remaining catalog steps fall through to the generic predicate.
	for _, name := range c.Steps {
		if _, ok := res.Statuses[name]; !ok {
			res.Statuses[name] = statusOf(rec(name), false)
		}
	}
	return res
}

// MissingFields runs the requirement evaluator over one step record.
func MissingFields(r StepRecord, docs schema.DocSet) []string {
	set := schema.CollectMissing(r.Schema.Fields, r.Values, schema.Context{StepID: r.ID, Documents: docs})
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// statusOf folds the stored status, the done predicate and the touched
// fallback into the final state. A step with no answered data is never done.
func statusOf(r StepRecord, done bool) Status {
	if r.Status == StatusBlocked {
		return StatusBlocked
	}
	if done {
		return StatusDone
	}
	if schema.HasRawValue(r.Values) {
		return StatusInProgress
	}
	return StatusPending
}

// expectedTruckCount is the number of trucks the later steps plan around:
// the active row count, raised by the planned/actual count fields when they
// exceed it.
func expectedTruckCount(trucksValues schema.Values, activeRows int) int {
	expected := activeRows
	if n, ok := schema.Number(textAt(trucksValues, FieldPlannedTruckCount)); ok && int(n) > expected {
		expected = int(n)
	}
	if n, ok := schema.Number(textAt(trucksValues, FieldActualTruckCount)); ok && int(n) > expected {
		expected = int(n)
	}
	return expected
}

// activeTruckRows returns the answered, non-cancelled truck rows.
func activeTruckRows(trucksValues schema.Values) []map[string]any {
	var out []map[string]any
	for _, row := range answeredRows(trucksValues, FieldTrucks) {
		if ParseBookingStatus(rowText(row, FieldBookingStatus)) == BookingCancelled {
			continue
		}
		out = append(out, row)
	}
	return out
}

// loadRowComplete checks one loading row: origin set, loaded, the
// origin-specific dates present, positive cargo figures, and a loading
// photo for warehouse and mixed origins.
func loadRowComplete(row map[string]any, index int, ctx schema.Context) bool {
	originText := rowText(row, FieldOrigin)
	if originText == "" {
		return false
	}
	if !schema.Truthy(rowText(row, FieldLoaded)) {
		return false
	}
	origin := ParseLoadingOrigin(originText)
	switch origin {
	case OriginWarehouse:
		if rowText(row, FieldWarehouseDate) == "" {
			return false
		}
	case OriginPort:
		if rowText(row, FieldPortDate) == "" {
			return false
		}
	case OriginMixed:
		if rowText(row, FieldWarehouseDate) == "" || rowText(row, FieldPortDate) == "" {
			return false
		}
	}
	weight, okW := schema.Number(rowText(row, FieldCargoWeight))
	qty, okQ := schema.Number(rowText(row, FieldCargoQuantity))
	if !okW || weight <= 0 || !okQ || qty <= 0 || rowText(row, FieldCargoUnit) == "" {
		return false
	}
	if origin == OriginWarehouse || origin == OriginMixed {
		photo := fieldpath.Path{fieldpath.Field(FieldLoads), fieldpath.Index(index), fieldpath.Field(FieldLoadingPhoto)}
		if !ctx.HasDocument(photo) {
			return false
		}
	}
	return true
}

// checkpointAllocationComplete validates one checkpoint's group inside the
// customs-allocation step: agent present, and if the clearance choice has
// any answer, the active branch complete (client-final suppresses the zaxon
// branch — the evaluator owns that rule).
func checkpointAllocationComplete(values schema.Values, key string, ctx schema.Context) bool {
	group, _ := values[key].(map[string]any)
	if group == nil {
		return false
	}
	if strings.TrimSpace(rowText(group, FieldAgent)) == "" {
		return false
	}
	cf := ClearanceField()
	if !schema.HasAnyValue([]schema.Field{cf}, group, ctx) {
		return true
	}
	return len(schema.CollectMissing([]schema.Field{cf}, group, ctx)) == 0
}

// groupRows reads a repeatable group's raw row list.
func groupRows(values schema.Values, key string) []map[string]any {
	items, _ := values[key].([]any)
	out := make([]map[string]any, len(items))
	for i, item := range items {
		m, _ := item.(map[string]any)
		out[i] = m
	}
	return out
}

// answeredRows filters groupRows down to rows carrying any value; empty
// trailing rows are ignored everywhere.
func answeredRows(values schema.Values, key string) []map[string]any {
	var out []map[string]any
	for _, row := range groupRows(values, key) {
		if schema.HasRawValue(row) {
			out = append(out, row)
		}
	}
	return out
}

func rowText(row map[string]any, field string) string {
	if row == nil {
		return ""
	}
	s, _ := row[field].(string)
	return strings.TrimSpace(s)
}

func textAt(values schema.Values, field string) string {
	s, _ := values[field].(string)
	return strings.TrimSpace(s)
}

func flagAt(values schema.Values, field string) bool {
	return schema.Truthy(textAt(values, field))
}

// DescribeGate explains why the invoice gate is closed; used for warnings
// and CLI output.
func (c Catalog) DescribeGate(res Result) string {
	if res.CanFinalizeInvoice {
		return "invoice can be finalized"
	}
	return fmt.Sprintf("invoice gated: loading %s, %d/%d loads complete",
		res.Statuses[StepLoadingDetails], res.LoadingProgress.Completed, res.LoadingProgress.Expected)
}
