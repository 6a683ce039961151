package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"freightline/internal/config"
	"freightline/internal/domain"
	"freightline/internal/events"
	"freightline/internal/fieldpath"
	"freightline/internal/ledger"
	"freightline/internal/repo"
	"freightline/internal/schema"
	"freightline/internal/workflow"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Catalog workflow.Catalog
	Now     func() time.Time

	stock *ledger.Index
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	e := &Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Catalog: cfg.Catalog(),
		Now:     time.Now,
	}
	e.stock = ledger.NewIndex(e.loadExportAllocations)
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ShipmentCreateOptions are parameters for creating a shipment.
type ShipmentCreateOptions struct {
	Code             string
	Name             string
	Kind             string
	Route            string
	BOENumber        string
	ImportedQuantity float64
	ImportedWeight   float64
	ActorID          string
}

// CreateShipment records a shipment and seeds one step per catalog entry
// with its default schema.
func (e *Engine) CreateShipment(ctx context.Context, opts ShipmentCreateOptions) (domain.Shipment, error) {
	if opts.Code == "" {
		return domain.Shipment{}, errors.New("code is required")
	}
	if opts.Kind != "import" && opts.Kind != "export" {
		return domain.Shipment{}, fmt.Errorf("kind must be import or export, got %q", opts.Kind)
	}
	now := e.timestamp()
	s := domain.Shipment{
		ID:               uuid.NewString(),
		Code:             opts.Code,
		Name:             opts.Name,
		Kind:             opts.Kind,
		Status:           "active",
		BOENumber:        opts.BOENumber,
		ImportedQuantity: opts.ImportedQuantity,
		ImportedWeight:   opts.ImportedWeight,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if opts.Kind == "export" {
		s.Route = string(e.Catalog.ParseRoute(opts.Route))
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Shipment{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertShipment(ctx, tx, s); err != nil {
		return domain.Shipment{}, fmt.Errorf("insert shipment: %w", err)
	}
	for _, name := range e.Catalog.Steps {
		st := domain.Step{
			ID:          uuid.NewString(),
			ShipmentID:  s.ID,
			Name:        name,
			Status:      string(workflow.StatusPending),
			FieldSchema: e.Catalog.DefaultSchema(name).Encode(),
			FieldValues: "{}",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertStepTx(ctx, tx, st); err != nil {
			return domain.Shipment{}, fmt.Errorf("seed step %s: %w", name, err)
		}
	}
	if err := e.Events.Append(ctx, tx, "shipment.created", s.ID, "shipment", s.ID, opts.ActorID,
		events.EventPayload{"code": s.Code, "kind": s.Kind, "route": s.Route}); err != nil {
		return domain.Shipment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Shipment{}, err
	}
	return s, nil
}

// UpdateShipment applies a partial update. Changing imported totals or the
// route invalidates the stock index.
func (e *Engine) UpdateShipment(ctx context.Context, ref string, u repo.ShipmentUpdate, actorID string) (domain.Shipment, error) {
	s, err := e.Repo.ResolveShipment(ctx, ref)
	if err != nil {
		return domain.Shipment{}, err
	}
	if u.Route != nil {
		r := string(e.Catalog.ParseRoute(*u.Route))
		u.Route = &r
	}
	if err := e.Repo.UpdateShipment(ctx, s.ID, u, e.timestamp()); err != nil {
		return domain.Shipment{}, err
	}
	if u.ImportedQuantity != nil || u.ImportedWeight != nil || u.BOENumber != nil {
		e.stock.Invalidate()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Shipment{}, err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "shipment.updated", s.ID, "shipment", s.ID, actorID, nil); err != nil {
		return domain.Shipment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Shipment{}, err
	}
	return e.Repo.GetShipment(ctx, s.ID)
}

func (e *Engine) DeleteShipment(ctx context.Context, ref, actorID string) error {
	s, err := e.Repo.ResolveShipment(ctx, ref)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteShipment(ctx, s.ID); err != nil {
		return err
	}
	e.stock.Invalidate()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "shipment.deleted", "", "shipment", s.ID, actorID,
		events.EventPayload{"code": s.Code}); err != nil {
		return err
	}
	return tx.Commit()
}

// StepValueUpdate carries one batch of path-addressed edits to a step's
// value tree. Paths use the encoded dot form.
type StepValueUpdate struct {
	Set     map[string]string
	Remove  []string
	ActorID string
}

// UpdateStepValues merges the edits into the step's stored tree and appends
// a step.updated event in the same transaction. Edits to an export
// shipment's import-selection step invalidate the stock index.
func (e *Engine) UpdateStepValues(ctx context.Context, shipmentRef, stepName string, u StepValueUpdate) (domain.Step, error) {
	s, st, err := e.resolveStep(ctx, shipmentRef, stepName)
	if err != nil {
		return domain.Step{}, err
	}
	values := schema.ParseValues(st.FieldValues)
	values = schema.ApplyUpdates(values, u.Set)
	values = schema.ApplyRemovals(values, u.Remove)
	encoded := schema.EncodeValues(values)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Step{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateStepValuesTx(ctx, tx, st.ID, encoded, e.timestamp()); err != nil {
		return domain.Step{}, err
	}
	payload := events.EventPayload{"step": stepName}
	if len(u.Set) > 0 {
		payload["set"] = sortedKeys(u.Set)
	}
	if len(u.Remove) > 0 {
		payload["removed"] = u.Remove
	}
	if err := e.Events.Append(ctx, tx, "step.updated", s.ID, "step", st.ID, u.ActorID, payload); err != nil {
		return domain.Step{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Step{}, err
	}
	if stepName == workflow.StepImportSelection && s.Kind == "export" {
		e.stock.Invalidate()
	}
	return e.Repo.GetStepByID(ctx, st.ID)
}

// ImportStepSchema replaces a step's field schema. The text is parsed
// defensively: malformed JSON yields the empty schema rather than an error,
// matching how stored schemas are read back.
func (e *Engine) ImportStepSchema(ctx context.Context, shipmentRef, stepName, schemaJSON, actorID string) (domain.Step, error) {
	s, st, err := e.resolveStep(ctx, shipmentRef, stepName)
	if err != nil {
		return domain.Step{}, err
	}
	parsed := schema.Parse(schemaJSON)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Step{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateStepSchemaTx(ctx, tx, st.ID, parsed.Encode(), e.timestamp()); err != nil {
		return domain.Step{}, err
	}
	if err := e.Events.Append(ctx, tx, "step.schema_imported", s.ID, "step", st.ID, actorID,
		events.EventPayload{"step": stepName, "version": parsed.Version, "fields": len(parsed.Fields)}); err != nil {
		return domain.Step{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Step{}, err
	}
	return e.Repo.GetStepByID(ctx, st.ID)
}

// SetStepBlocked stores or clears an operator hold on a step. A stored
// BLOCKED survives status derivation; clearing it reverts the step to
// derived status on the next read.
func (e *Engine) SetStepBlocked(ctx context.Context, shipmentRef, stepName string, blocked bool, actorID string) (domain.Step, error) {
	s, st, err := e.resolveStep(ctx, shipmentRef, stepName)
	if err != nil {
		return domain.Step{}, err
	}
	status := string(workflow.StatusPending)
	if blocked {
		status = string(workflow.StatusBlocked)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Step{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateStepStatusTx(ctx, tx, st.ID, status, e.timestamp()); err != nil {
		return domain.Step{}, err
	}
	if err := e.Events.Append(ctx, tx, "step.blocked", s.ID, "step", st.ID, actorID,
		events.EventPayload{"step": stepName, "blocked": blocked}); err != nil {
		return domain.Step{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Step{}, err
	}
	return e.Repo.GetStepByID(ctx, st.ID)
}

// AttachDocument records a document against a step field path and returns
// it. The stored type token embeds the step id and encoded path so document
// presence can satisfy required file fields.
func (e *Engine) AttachDocument(ctx context.Context, shipmentRef, stepName, encodedPath, fileName, actorID string) (domain.Document, error) {
	s, st, err := e.resolveStep(ctx, shipmentRef, stepName)
	if err != nil {
		return domain.Document{}, err
	}
	p := fieldpath.Decode(encodedPath)
	if len(p) == 0 {
		return domain.Document{}, errors.New("field path is required")
	}
	d := domain.Document{
		ID:         uuid.NewString(),
		StepID:     st.ID,
		TypeToken:  schema.Token(st.ID, p),
		FileName:   fileName,
		UploadedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Document{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDocumentTx(ctx, tx, d); err != nil {
		return domain.Document{}, fmt.Errorf("insert document: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "document.attached", s.ID, "document", d.ID, actorID,
		events.EventPayload{"step": stepName, "path": encodedPath, "file_name": fileName}); err != nil {
		return domain.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Document{}, err
	}
	return d, nil
}

func (e *Engine) DetachDocument(ctx context.Context, docID, actorID string) error {
	d, err := e.Repo.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	st, err := e.Repo.GetStepByID(ctx, d.StepID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDocumentTx(ctx, tx, d.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "document.detached", st.ShipmentID, "document", d.ID, actorID,
		events.EventPayload{"token": d.TypeToken}); err != nil {
		return err
	}
	return tx.Commit()
}

// StatusBoard is the full derived view of one shipment.
type StatusBoard struct {
	Shipment domain.Shipment `json:"shipment"`
	Steps    []domain.Step   `json:"steps"`
	Derived  workflow.Result `json:"derived"`
}

// ShipmentStatuses loads a shipment's steps and documents and derives every
// step status fresh. Nothing is written back; the stored status column only
// carries operator BLOCKED holds.
func (e *Engine) ShipmentStatuses(ctx context.Context, shipmentRef string) (StatusBoard, error) {
	s, err := e.Repo.ResolveShipment(ctx, shipmentRef)
	if err != nil {
		return StatusBoard{}, err
	}
	steps, err := e.Repo.ListSteps(ctx, s.ID)
	if err != nil {
		return StatusBoard{}, err
	}
	tokens, err := e.Repo.ShipmentDocumentTokens(ctx, s.ID)
	if err != nil {
		return StatusBoard{}, err
	}
	records := make(map[string]workflow.StepRecord, len(steps))
	for _, st := range steps {
		records[st.Name] = workflow.StepRecord{
			ID:     st.ID,
			Name:   st.Name,
			Status: workflow.Status(st.Status),
			Schema: schema.Parse(st.FieldSchema),
			Values: schema.ParseValues(st.FieldValues),
		}
	}
	res := e.Catalog.ComputeStatuses(records, schema.NewDocSet(tokens), e.Catalog.ParseRoute(s.Route))
	return StatusBoard{Shipment: s, Steps: steps, Derived: res}, nil
}

// MissingStepFields lists the unsatisfied required field paths of one step.
func (e *Engine) MissingStepFields(ctx context.Context, shipmentRef, stepName string) ([]string, error) {
	s, st, err := e.resolveStep(ctx, shipmentRef, stepName)
	if err != nil {
		return nil, err
	}
	tokens, err := e.Repo.ShipmentDocumentTokens(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	rec := workflow.StepRecord{
		ID:     st.ID,
		Name:   st.Name,
		Status: workflow.Status(st.Status),
		Schema: schema.Parse(st.FieldSchema),
		Values: schema.ParseValues(st.FieldValues),
	}
	return workflow.MissingFields(rec, schema.NewDocSet(tokens)), nil
}

// StockReport reconciles one import shipment against every export
// shipment's allocation rows.
func (e *Engine) StockReport(ctx context.Context, shipmentRef string) (ledger.Remaining, error) {
	s, err := e.Repo.ResolveShipment(ctx, shipmentRef)
	if err != nil {
		return ledger.Remaining{}, err
	}
	if s.Kind != "import" {
		return ledger.Remaining{}, fmt.Errorf("shipment %s is not an import", s.Code)
	}
	l, err := e.stock.Ledger(ctx)
	if err != nil {
		return ledger.Remaining{}, err
	}
	return l.RemainingStock(ledger.ImportRef{
		ShipmentID:       s.ID,
		Code:             s.Code,
		BOENumber:        s.BOENumber,
		ImportedQuantity: s.ImportedQuantity,
		ImportedWeight:   s.ImportedWeight,
	}), nil
}

// StockWarnings reports every over-allocated import shipment.
func (e *Engine) StockWarnings(ctx context.Context) ([]string, error) {
	imports, err := e.Repo.ListShipments(ctx, repo.ShipmentFilters{Kind: "import"})
	if err != nil {
		return nil, err
	}
	refs := make([]ledger.ImportRef, 0, len(imports))
	for _, s := range imports {
		refs = append(refs, ledger.ImportRef{
			ShipmentID:       s.ID,
			Code:             s.Code,
			BOENumber:        s.BOENumber,
			ImportedQuantity: s.ImportedQuantity,
			ImportedWeight:   s.ImportedWeight,
		})
	}
	l, err := e.stock.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	return l.ImportWarnings(refs), nil
}

// InvalidateStock drops the cached allocation ledger. Exposed for callers
// that mutate step values outside the engine (tests, migrations).
func (e *Engine) InvalidateStock() {
	e.stock.Invalidate()
}

// loadExportAllocations scans every export shipment's import-selection step
// for allocation rows. It backs the cached ledger index.
func (e *Engine) loadExportAllocations(ctx context.Context) ([]ledger.ExportAllocations, error) {
	steps, shipments, err := e.Repo.StepsByNameForKind(ctx, workflow.StepImportSelection, "export")
	if err != nil {
		return nil, err
	}
	out := make([]ledger.ExportAllocations, 0, len(steps))
	for i, st := range steps {
		rows := ledger.RowsFromValues(schema.ParseValues(st.FieldValues))
		if len(rows) == 0 {
			continue
		}
		out = append(out, ledger.ExportAllocations{
			ShipmentID:   shipments[i].ID,
			ShipmentCode: shipments[i].Code,
			Rows:         rows,
		})
	}
	return out, nil
}

func (e *Engine) resolveStep(ctx context.Context, shipmentRef, stepName string) (domain.Shipment, domain.Step, error) {
	s, err := e.Repo.ResolveShipment(ctx, shipmentRef)
	if err != nil {
		return domain.Shipment{}, domain.Step{}, err
	}
	st, err := e.Repo.GetStep(ctx, s.ID, stepName)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Shipment{}, domain.Step{}, fmt.Errorf("shipment %s has no step %q: %w", s.Code, stepName, repo.ErrNotFound)
		}
		return domain.Shipment{}, domain.Step{}, err
	}
	return s, st, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
