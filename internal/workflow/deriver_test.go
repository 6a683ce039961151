package workflow

import (
	"reflect"
	"testing"

	"freightline/internal/fieldpath"
	"freightline/internal/schema"
)

func record(c Catalog, name string, values schema.Values) StepRecord {
	return StepRecord{
		ID:     "step-" + name,
		Name:   name,
		Status: StatusPending,
		Schema: c.DefaultSchema(name),
		Values: values,
	}
}

func truckRow(number string, booked bool) map[string]any {
	row := map[string]any{
		"truck_number":   number,
		"driver_name":    "Driver " + number,
		"driver_contact": "050-" + number,
	}
	if booked {
		row["booking_status"] = "booked"
		row["booking_date"] = "2026-02-01"
	}
	return row
}

func loadRow(origin string) map[string]any {
	row := map[string]any{
		"origin":         origin,
		"loaded":         "true",
		"cargo_weight":   "1000",
		"cargo_quantity": "5",
		"cargo_unit":     "pallets",
	}
	switch origin {
	case "warehouse":
		row["warehouse_loading_date"] = "2026-02-01"
	case "port":
		row["port_loading_date"] = "2026-02-01"
	case "mixed":
		row["warehouse_loading_date"] = "2026-02-01"
		row["port_loading_date"] = "2026-02-02"
	}
	return row
}

func photoDocs(stepID string, rows ...int) schema.DocSet {
	tokens := make([]string, 0, len(rows))
	for _, i := range rows {
		p := fieldpath.Path{fieldpath.Field(FieldLoads), fieldpath.Index(i), fieldpath.Field(FieldLoadingPhoto)}
		tokens = append(tokens, schema.Token(stepID, p))
	}
	return schema.NewDocSet(tokens)
}

func TestPlanOverviewNeedsFlagAndDate(t *testing.T) {
	c := DefaultCatalog()
	cases := []struct {
		values schema.Values
		want   Status
	}{
		{schema.Values{}, StatusPending},
		{schema.Values{FieldOrderReceived: "true"}, StatusInProgress},
		{schema.Values{FieldOrderReceivedDate: "2026-02-01"}, StatusInProgress},
		{schema.Values{FieldOrderReceived: "yes", FieldOrderReceivedDate: "2026-02-01"}, StatusDone},
	}
	for _, tc := range cases {
		steps := map[string]StepRecord{StepPlanOverview: record(c, StepPlanOverview, tc.values)}
		res := c.ComputeStatuses(steps, nil, c.DefaultRoute)
		if got := res.Statuses[StepPlanOverview]; got != tc.want {
			t.Errorf("values %v: status = %s, want %s", tc.values, got, tc.want)
		}
	}
}

func TestTrucksExpectedCountRaisedByPlanned(t *testing.T) {
	c := DefaultCatalog()
	values := schema.Values{
		FieldPlannedTruckCount: "3",
		FieldTrucks: []any{
			truckRow("1", true),
			truckRow("2", true),
		},
	}
	steps := map[string]StepRecord{StepTrucksDetails: record(c, StepTrucksDetails, values)}
	res := c.ComputeStatuses(steps, nil, c.DefaultRoute)
	// two booked rows against a planned count of three
	if got := res.Statuses[StepTrucksDetails]; got != StatusInProgress {
		t.Fatalf("trucks = %s, want IN_PROGRESS", got)
	}

	values[FieldTrucks] = append(values[FieldTrucks].([]any), truckRow("3", true))
	res = c.ComputeStatuses(steps, nil, c.DefaultRoute)
	if got := res.Statuses[StepTrucksDetails]; got != StatusDone {
		t.Fatalf("trucks = %s, want DONE", got)
	}
}

func TestCancelledTrucksAreIgnored(t *testing.T) {
	c := DefaultCatalog()
	cancelled := truckRow("9", true)
	cancelled["booking_status"] = "cancelled"
	values := schema.Values{FieldTrucks: []any{truckRow("1", true), cancelled}}
	steps := map[string]StepRecord{StepTrucksDetails: record(c, StepTrucksDetails, values)}
	res := c.ComputeStatuses(steps, nil, c.DefaultRoute)
	if got := res.Statuses[StepTrucksDetails]; got != StatusDone {
		t.Fatalf("trucks = %s, want DONE with the cancelled row ignored", got)
	}
}

func TestLoadingProgressAndPhotoRule(t *testing.T) {
	c := DefaultCatalog()
	rec := record(c, StepLoadingDetails, schema.Values{
		FieldLoads: []any{loadRow("warehouse"), loadRow("port")},
	})
	steps := map[string]StepRecord{
		StepTrucksDetails:  record(c, StepTrucksDetails, schema.Values{FieldTrucks: []any{truckRow("1", true), truckRow("2", true)}}),
		StepLoadingDetails: rec,
	}

	// the warehouse row lacks its photo: 1 of 2 complete
	res := c.ComputeStatuses(steps, nil, c.DefaultRoute)
	if res.LoadingProgress != (Progress{Completed: 1, Expected: 2}) {
		t.Fatalf("progress = %+v", res.LoadingProgress)
	}
	if got := res.Statuses[StepLoadingDetails]; got != StatusInProgress {
		t.Fatalf("loading = %s, want IN_PROGRESS", got)
	}

	res = c.ComputeStatuses(steps, photoDocs(rec.ID, 0), c.DefaultRoute)
	if res.LoadingProgress != (Progress{Completed: 2, Expected: 2}) {
		t.Fatalf("progress with photo = %+v", res.LoadingProgress)
	}
	if got := res.Statuses[StepLoadingDetails]; got != StatusDone {
		t.Fatalf("loading = %s, want DONE", got)
	}
}

func fullExportSteps(c Catalog) (map[string]StepRecord, schema.DocSet) {
	loading := record(c, StepLoadingDetails, schema.Values{FieldLoads: []any{loadRow("port")}})
	invoice := record(c, StepExportInvoice, schema.Values{
		FieldInvoiceNumber: "INV-1",
		FieldInvoiceDate:   "2026-02-02",
		FieldFinalized:     "true",
	})
	docs := schema.NewDocSet([]string{
		schema.Token(invoice.ID, fieldpath.Path{fieldpath.Field(FieldInvoiceFile)}),
	})
	steps := map[string]StepRecord{
		StepTrucksDetails:  record(c, StepTrucksDetails, schema.Values{FieldTrucks: []any{truckRow("1", true)}}),
		StepLoadingDetails: loading,
		StepImportSelection: record(c, StepImportSelection, schema.Values{FieldAllocations: []any{map[string]any{
			FieldReference:          "IMP-1",
			FieldProcessedAvailable: "yes",
			FieldImportedQuantity:   "10",
		}}}),
		StepExportInvoice: invoice,
	}
	return steps, docs
}

func TestInvoiceGate(t *testing.T) {
	c := DefaultCatalog()
	steps, docs := fullExportSteps(c)

	res := c.ComputeStatuses(steps, docs, c.DefaultRoute)
	if !res.CanFinalizeInvoice {
		t.Fatal("gate should be open")
	}
	if got := res.Statuses[StepExportInvoice]; got != StatusDone {
		t.Fatalf("invoice = %s, want DONE", got)
	}
	if got := res.Statuses[StepStockView]; got != StatusDone {
		t.Fatalf("stock view = %s, want to mirror the invoice", got)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings = %v", res.Warnings)
	}

	// breaking import availability closes the gate and flags the finalized
	// invoice
	imports := steps[StepImportSelection]
	imports.Values = schema.Values{FieldAllocations: []any{map[string]any{
		FieldReference:          "IMP-1",
		FieldProcessedAvailable: "no",
		FieldImportedQuantity:   "10",
	}}}
	steps[StepImportSelection] = imports
	res = c.ComputeStatuses(steps, docs, c.DefaultRoute)
	if res.CanFinalizeInvoice {
		t.Fatal("gate should be closed")
	}
	if got := res.Statuses[StepExportInvoice]; got == StatusDone {
		t.Fatal("invoice done behind a closed gate")
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a finalized-before-gate warning")
	}
}

func TestCustomsAllocationPerRoute(t *testing.T) {
	c := DefaultCatalog()
	clearance := map[string]any{
		"client": map[string]any{"confirmed": "true"},
	}
	values := schema.Values{
		"ksa": map[string]any{FieldAgent: "Gulf Agents", FieldClearance: clearance},
	}
	steps := map[string]StepRecord{StepCustomsAllocation: record(c, StepCustomsAllocation, values)}

	// KSA route needs only the ksa checkpoint's agent and clearance
	res := c.ComputeStatuses(steps, nil, RouteJafzaToKSA)
	if got := res.Statuses[StepCustomsAllocation]; got != StatusDone {
		t.Fatalf("customs on KSA route = %s, want DONE", got)
	}

	// the Syria route also needs jordan and syria checkpoints
	res = c.ComputeStatuses(steps, nil, RouteJafzaToSyria)
	if got := res.Statuses[StepCustomsAllocation]; got != StatusInProgress {
		t.Fatalf("customs on Syria route = %s, want IN_PROGRESS", got)
	}
}

func TestCheckpointTerminalsPerRoute(t *testing.T) {
	c := DefaultCatalog()

	// KSA route: batha delivery completes checkpoint_ksa, others vacuous
	steps := map[string]StepRecord{
		StepCheckpointKSA: record(c, StepCheckpointKSA, schema.Values{"batha_delivered": "true"}),
	}
	res := c.ComputeStatuses(steps, nil, RouteJafzaToKSA)
	if got := res.Statuses[StepCheckpointKSA]; got != StatusDone {
		t.Fatalf("checkpoint_ksa = %s", got)
	}
	if res.Statuses[StepCheckpointJordan] != StatusDone || res.Statuses[StepCheckpointSyria] != StatusDone {
		t.Fatal("off-route checkpoints should be vacuously done")
	}

	// Jordan route: batha delivery is the wrong terminal for KSA transit
	res = c.ComputeStatuses(steps, nil, RouteJafzaToJordan)
	if got := res.Statuses[StepCheckpointKSA]; got != StatusInProgress {
		t.Fatalf("checkpoint_ksa on Jordan route = %s, want IN_PROGRESS", got)
	}
	steps[StepCheckpointKSA] = record(c, StepCheckpointKSA, schema.Values{"transit_exit_date": "2026-02-05"})
	res = c.ComputeStatuses(steps, nil, RouteJafzaToJordan)
	if got := res.Statuses[StepCheckpointKSA]; got != StatusDone {
		t.Fatalf("transit exit date should complete KSA on the Jordan route, got %s", got)
	}
	if got := res.Statuses[StepCheckpointJordan]; got != StatusPending {
		t.Fatalf("checkpoint_jordan = %s, want PENDING", got)
	}
}

func TestStoredBlockedIsPreserved(t *testing.T) {
	c := DefaultCatalog()
	rec := record(c, StepPlanOverview, schema.Values{
		FieldOrderReceived:     "true",
		FieldOrderReceivedDate: "2026-02-01",
	})
	rec.Status = StatusBlocked
	steps := map[string]StepRecord{StepPlanOverview: rec}
	res := c.ComputeStatuses(steps, nil, c.DefaultRoute)
	if got := res.Statuses[StepPlanOverview]; got != StatusBlocked {
		t.Fatalf("blocked step derived as %s", got)
	}
}

func TestComputeStatusesIsPure(t *testing.T) {
	c := DefaultCatalog()
	steps, docs := fullExportSteps(c)
	first := c.ComputeStatuses(steps, docs, RouteJafzaToSyria)
	second := c.ComputeStatuses(steps, docs, RouteJafzaToSyria)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("derivation not idempotent:\n%+v\n%+v", first, second)
	}
	if len(first.Statuses) != len(c.Steps) {
		t.Fatalf("statuses cover %d steps, want %d", len(first.Statuses), len(c.Steps))
	}
}

func TestParseEnumsDefaults(t *testing.T) {
	if ParseBookingStatus("") != BookingPending || ParseBookingStatus("garbage") != BookingPending {
		t.Fatal("booking status default")
	}
	if ParseBookingStatus("canceled") != BookingCancelled {
		t.Fatal("US spelling should read as cancelled")
	}
	if ParseLoadingOrigin("PORT") != OriginPort || ParseLoadingOrigin("x") != OriginWarehouse {
		t.Fatal("loading origin parse")
	}
	if ParseClearanceMode("client") != ClearanceClient || ParseClearanceMode("") != ClearanceZaxon {
		t.Fatal("clearance mode parse")
	}
}

func TestParseRouteFallsBack(t *testing.T) {
	c := DefaultCatalog()
	if c.ParseRoute("JAFZA_TO_JORDAN") != RouteJafzaToJordan {
		t.Fatal("known route")
	}
	if c.ParseRoute("") != c.DefaultRoute || c.ParseRoute("JAFZA_TO_MARS") != c.DefaultRoute {
		t.Fatal("unknown routes should fall back to the default")
	}
}
