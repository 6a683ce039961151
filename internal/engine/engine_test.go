package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"freightline/internal/config"
	"freightline/internal/db"
	"freightline/internal/engine"
	"freightline/internal/migrate"
	"freightline/internal/repo"
	"freightline/internal/workflow"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	eng.Events.Now = eng.Now
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func createExport(t *testing.T, env testEnv, code string) string {
	t.Helper()
	s, err := env.Engine.CreateShipment(env.Ctx, engine.ShipmentCreateOptions{
		Code: code, Kind: "export", Route: "JAFZA_TO_KSA", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create export %s: %v", code, err)
	}
	return s.ID
}

func TestCreateShipmentSeedsCatalogSteps(t *testing.T) {
	env := newTestEnv(t)
	id := createExport(t, env, "EXP-1")
	steps, err := env.Engine.Repo.ListSteps(env.Ctx, id)
	if err != nil {
		t.Fatalf("list steps: %v", err)
	}
	if len(steps) != len(env.Engine.Catalog.Steps) {
		t.Fatalf("seeded %d steps, want %d", len(steps), len(env.Engine.Catalog.Steps))
	}
	byName := map[string]bool{}
	for _, st := range steps {
		byName[st.Name] = true
		if st.Status != string(workflow.StatusPending) {
			t.Fatalf("step %s status = %s, want PENDING", st.Name, st.Status)
		}
		if st.FieldSchema == "" || st.FieldValues != "{}" {
			t.Fatalf("step %s not seeded with schema and empty values", st.Name)
		}
	}
	if !byName[workflow.StepCustomsAllocation] || !byName[workflow.StepCheckpointSyria] {
		t.Fatalf("missing expected steps in %v", byName)
	}
}

func TestCreateShipmentValidatesKind(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateShipment(env.Ctx, engine.ShipmentCreateOptions{Code: "X", Kind: "transit"}); err == nil {
		t.Fatal("expected kind error")
	}
	if _, err := env.Engine.CreateShipment(env.Ctx, engine.ShipmentCreateOptions{Kind: "import"}); err == nil {
		t.Fatal("expected code error")
	}
}

func TestCreateShipmentFallsBackToDefaultRoute(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.CreateShipment(env.Ctx, engine.ShipmentCreateOptions{
		Code: "EXP-R", Kind: "export", Route: "JAFZA_TO_MARS", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Route != string(env.Engine.Catalog.DefaultRoute) {
		t.Fatalf("route = %s, want default %s", s.Route, env.Engine.Catalog.DefaultRoute)
	}
}

func TestUpdateStepValuesMergesByPath(t *testing.T) {
	env := newTestEnv(t)
	createExport(t, env, "EXP-2")
	st, err := env.Engine.UpdateStepValues(env.Ctx, "EXP-2", workflow.StepPlanOverview, engine.StepValueUpdate{
		Set:     map[string]string{"order_received": "true", "order_received_date": "2026-02-01"},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update values: %v", err)
	}
	if !strings.Contains(st.FieldValues, `"order_received":"true"`) {
		t.Fatalf("values not merged: %s", st.FieldValues)
	}
	st, err = env.Engine.UpdateStepValues(env.Ctx, "EXP-2", workflow.StepPlanOverview, engine.StepValueUpdate{
		Remove:  []string{"order_received_date"},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("remove value: %v", err)
	}
	if strings.Contains(st.FieldValues, "order_received_date") {
		t.Fatalf("removal not applied: %s", st.FieldValues)
	}
}

func TestUpdateStepValuesUnknownStep(t *testing.T) {
	env := newTestEnv(t)
	createExport(t, env, "EXP-3")
	_, err := env.Engine.UpdateStepValues(env.Ctx, "EXP-3", "no_such_step", engine.StepValueUpdate{
		Set: map[string]string{"x": "1"},
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStatusBoardDerivesFresh(t *testing.T) {
	env := newTestEnv(t)
	createExport(t, env, "EXP-4")
	if _, err := env.Engine.UpdateStepValues(env.Ctx, "EXP-4", workflow.StepPlanOverview, engine.StepValueUpdate{
		Set: map[string]string{"order_received": "yes", "order_received_date": "2026-02-01"},
	}); err != nil {
		t.Fatal(err)
	}
	board, err := env.Engine.ShipmentStatuses(env.Ctx, "EXP-4")
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if got := board.Derived.Statuses[workflow.StepPlanOverview]; got != workflow.StatusDone {
		t.Fatalf("plan_overview = %s, want DONE", got)
	}
	if got := board.Derived.Statuses[workflow.StepTrucksDetails]; got != workflow.StatusPending {
		t.Fatalf("trucks_details = %s, want PENDING", got)
	}
	// off-route checkpoints are vacuously done on the KSA route
	if got := board.Derived.Statuses[workflow.StepCheckpointJordan]; got != workflow.StatusDone {
		t.Fatalf("checkpoint_jordan = %s, want DONE", got)
	}
}

func TestSetStepBlockedSurvivesDerivation(t *testing.T) {
	env := newTestEnv(t)
	createExport(t, env, "EXP-5")
	if _, err := env.Engine.UpdateStepValues(env.Ctx, "EXP-5", workflow.StepPlanOverview, engine.StepValueUpdate{
		Set: map[string]string{"order_received": "true", "order_received_date": "2026-02-01"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetStepBlocked(env.Ctx, "EXP-5", workflow.StepPlanOverview, true, "tester"); err != nil {
		t.Fatalf("block: %v", err)
	}
	board, err := env.Engine.ShipmentStatuses(env.Ctx, "EXP-5")
	if err != nil {
		t.Fatal(err)
	}
	if got := board.Derived.Statuses[workflow.StepPlanOverview]; got != workflow.StatusBlocked {
		t.Fatalf("blocked step derived as %s", got)
	}
	if _, err := env.Engine.SetStepBlocked(env.Ctx, "EXP-5", workflow.StepPlanOverview, false, "tester"); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	board, err = env.Engine.ShipmentStatuses(env.Ctx, "EXP-5")
	if err != nil {
		t.Fatal(err)
	}
	if got := board.Derived.Statuses[workflow.StepPlanOverview]; got != workflow.StatusDone {
		t.Fatalf("unblocked step derived as %s, want DONE", got)
	}
}

func TestAttachDocumentCompletesLoadingRow(t *testing.T) {
	env := newTestEnv(t)
	createExport(t, env, "EXP-6")
	if _, err := env.Engine.UpdateStepValues(env.Ctx, "EXP-6", workflow.StepTrucksDetails, engine.StepValueUpdate{
		Set: map[string]string{
			"trucks.0.truck_number":   "T-100",
			"trucks.0.driver_name":    "Samir",
			"trucks.0.driver_contact": "050-1234",
			"trucks.0.booking_status": "booked",
			"trucks.0.booking_date":   "2026-01-30",
		},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateStepValues(env.Ctx, "EXP-6", workflow.StepLoadingDetails, engine.StepValueUpdate{
		Set: map[string]string{
			"loads.0.origin":                 "warehouse",
			"loads.0.loaded":                 "true",
			"loads.0.warehouse_loading_date": "2026-02-01",
			"loads.0.cargo_weight":           "1200",
			"loads.0.cargo_quantity":         "10",
			"loads.0.cargo_unit":             "pallets",
		},
	}); err != nil {
		t.Fatal(err)
	}
	board, err := env.Engine.ShipmentStatuses(env.Ctx, "EXP-6")
	if err != nil {
		t.Fatal(err)
	}
	// warehouse rows need a loading photo document before they count
	if got := board.Derived.Statuses[workflow.StepLoadingDetails]; got != workflow.StatusInProgress {
		t.Fatalf("loading without photo = %s, want IN_PROGRESS", got)
	}
	if board.Derived.LoadingProgress.Completed != 0 || board.Derived.LoadingProgress.Expected != 1 {
		t.Fatalf("progress = %+v", board.Derived.LoadingProgress)
	}
	doc, err := env.Engine.AttachDocument(env.Ctx, "EXP-6", workflow.StepLoadingDetails, "loads.0.loading_photo", "photo.jpg", "tester")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !strings.HasPrefix(doc.TypeToken, "STEP_FIELD:") {
		t.Fatalf("token = %s", doc.TypeToken)
	}
	board, err = env.Engine.ShipmentStatuses(env.Ctx, "EXP-6")
	if err != nil {
		t.Fatal(err)
	}
	if got := board.Derived.Statuses[workflow.StepLoadingDetails]; got != workflow.StatusDone {
		t.Fatalf("loading with photo = %s, want DONE", got)
	}
	if err := env.Engine.DetachDocument(env.Ctx, doc.ID, "tester"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	board, _ = env.Engine.ShipmentStatuses(env.Ctx, "EXP-6")
	if got := board.Derived.Statuses[workflow.StepLoadingDetails]; got != workflow.StatusInProgress {
		t.Fatalf("loading after detach = %s, want IN_PROGRESS", got)
	}
}

func TestMissingFieldsTracksRequiredFile(t *testing.T) {
	env := newTestEnv(t)
	createExport(t, env, "EXP-9")
	missing, err := env.Engine.MissingStepFields(env.Ctx, "EXP-9", workflow.StepExportInvoice)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(missing, "invoice_file") || !contains(missing, "invoice_number") {
		t.Fatalf("missing = %v", missing)
	}
	if _, err := env.Engine.AttachDocument(env.Ctx, "EXP-9", workflow.StepExportInvoice, "invoice_file", "inv.pdf", "tester"); err != nil {
		t.Fatal(err)
	}
	missing, err = env.Engine.MissingStepFields(env.Ctx, "EXP-9", workflow.StepExportInvoice)
	if err != nil {
		t.Fatal(err)
	}
	if contains(missing, "invoice_file") {
		t.Fatalf("invoice file still missing after attach: %v", missing)
	}
}

func TestStockReportAcrossExports(t *testing.T) {
	env := newTestEnv(t)
	imp, err := env.Engine.CreateShipment(env.Ctx, engine.ShipmentCreateOptions{
		Code: "IMP-1", Kind: "import", BOENumber: "BOE-77",
		ImportedQuantity: 100, ImportedWeight: 5000, ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	createExport(t, env, "EXP-A")
	createExport(t, env, "EXP-B")
	setAllocation := func(code, source, qty, weight string) {
		t.Helper()
		if _, err := env.Engine.UpdateStepValues(env.Ctx, code, workflow.StepImportSelection, engine.StepValueUpdate{
			Set: map[string]string{
				"allocations.0.source_shipment_id": source,
				"allocations.0.allocated_quantity": qty,
				"allocations.0.allocated_weight":   weight,
			},
		}); err != nil {
			t.Fatal(err)
		}
	}
	setAllocation("EXP-A", imp.ID, "40", "2000")
	setAllocation("EXP-B", imp.ID, "30", "1500")

	rem, err := env.Engine.StockReport(env.Ctx, "IMP-1")
	if err != nil {
		t.Fatalf("stock report: %v", err)
	}
	if rem.ConsumedQuantity != 70 || rem.RemainingQuantity != 30 {
		t.Fatalf("quantity consumed=%v remaining=%v", rem.ConsumedQuantity, rem.RemainingQuantity)
	}
	if rem.RemainingWeight != 1500 {
		t.Fatalf("remaining weight = %v", rem.RemainingWeight)
	}
	if len(rem.History) != 2 {
		t.Fatalf("history entries = %d, want one per exporter", len(rem.History))
	}
	if rem.OverAllocated {
		t.Fatal("not over-allocated")
	}

	// updating allocations must refresh the cached ledger
	setAllocation("EXP-B", imp.ID, "70", "1500")
	rem, err = env.Engine.StockReport(env.Ctx, "IMP-1")
	if err != nil {
		t.Fatal(err)
	}
	if rem.RemainingQuantity != -10 || !rem.OverAllocated {
		t.Fatalf("expected over-allocation, got remaining=%v flag=%v", rem.RemainingQuantity, rem.OverAllocated)
	}
	warnings, err := env.Engine.StockWarnings(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "IMP-1") {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestStockReportRejectsExports(t *testing.T) {
	env := newTestEnv(t)
	createExport(t, env, "EXP-7")
	if _, err := env.Engine.StockReport(env.Ctx, "EXP-7"); err == nil {
		t.Fatal("expected error for export shipment")
	}
}

func TestEventsAppended(t *testing.T) {
	env := newTestEnv(t)
	id := createExport(t, env, "EXP-8")
	if _, err := env.Engine.UpdateStepValues(env.Ctx, "EXP-8", workflow.StepPlanOverview, engine.StepValueUpdate{
		Set: map[string]string{"order_received": "true"}, ActorID: "ops",
	}); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, id, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Fatalf("events = %d, want created + updated", len(evts))
	}
	if evts[0].Type != "step.updated" || evts[0].ActorID != "ops" {
		t.Fatalf("latest event = %+v", evts[0])
	}
	if evts[1].Type != "shipment.created" {
		t.Fatalf("first event = %+v", evts[1])
	}
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
