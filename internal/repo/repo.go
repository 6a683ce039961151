package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"freightline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const shipmentCols = `id,code,COALESCE(name,'') AS name,kind,status,COALESCE(route,'') AS route,COALESCE(boe_number,'') AS boe_number,imported_quantity,imported_weight,created_at,updated_at`

func scanShipment(row *sql.Row) (domain.Shipment, error) {
	var s domain.Shipment
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Kind, &s.Status, &s.Route, &s.BOENumber,
		&s.ImportedQuantity, &s.ImportedWeight, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertShipment(ctx context.Context, tx *sql.Tx, s domain.Shipment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO shipments(id,code,name,kind,status,route,boe_number,imported_quantity,imported_weight,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Code, nullable(s.Name), s.Kind, s.Status, nullable(s.Route), nullable(s.BOENumber),
		s.ImportedQuantity, s.ImportedWeight, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetShipment(ctx context.Context, id string) (domain.Shipment, error) {
	return scanShipment(r.DB.QueryRowContext(ctx, `SELECT `+shipmentCols+` FROM shipments WHERE id=?`, id))
}

func (r Repo) GetShipmentByCode(ctx context.Context, code string) (domain.Shipment, error) {
	return scanShipment(r.DB.QueryRowContext(ctx, `SELECT `+shipmentCols+` FROM shipments WHERE code=?`, code))
}

// ResolveShipment accepts either a shipment id or its code.
func (r Repo) ResolveShipment(ctx context.Context, ref string) (domain.Shipment, error) {
	s, err := r.GetShipment(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return r.GetShipmentByCode(ctx, ref)
	}
	return s, err
}

type ShipmentFilters struct {
	Kind   string
	Status string
	Route  string
}

func (r Repo) ListShipments(ctx context.Context, f ShipmentFilters) ([]domain.Shipment, error) {
	query := `SELECT ` + shipmentCols + ` FROM shipments`
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	if f.Route != "" {
		where = append(where, "route=?")
		args = append(args, f.Route)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Shipment
	for rows.Next() {
		var s domain.Shipment
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Kind, &s.Status, &s.Route, &s.BOENumber,
			&s.ImportedQuantity, &s.ImportedWeight, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// ShipmentUpdate carries the optional fields of a partial shipment update.
type ShipmentUpdate struct {
	Name             *string
	Status           *string
	Route            *string
	BOENumber        *string
	ImportedQuantity *float64
	ImportedWeight   *float64
}

func (r Repo) UpdateShipment(ctx context.Context, id string, u ShipmentUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, nullable(*u.Name))
	}
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if u.Route != nil {
		fields = append(fields, "route=?")
		args = append(args, nullable(*u.Route))
	}
	if u.BOENumber != nil {
		fields = append(fields, "boe_number=?")
		args = append(args, nullable(*u.BOENumber))
	}
	if u.ImportedQuantity != nil {
		fields = append(fields, "imported_quantity=?")
		args = append(args, *u.ImportedQuantity)
	}
	if u.ImportedWeight != nil {
		fields = append(fields, "imported_weight=?")
		args = append(args, *u.ImportedWeight)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE shipments SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteShipment(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM shipments WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const stepCols = `id,shipment_id,name,status,field_schema,field_values,created_at,updated_at`

func scanStep(row *sql.Row) (domain.Step, error) {
	var st domain.Step
	err := row.Scan(&st.ID, &st.ShipmentID, &st.Name, &st.Status, &st.FieldSchema, &st.FieldValues, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return st, ErrNotFound
	}
	return st, err
}

func (r Repo) InsertStepTx(ctx context.Context, tx *sql.Tx, st domain.Step) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO steps(id,shipment_id,name,status,field_schema,field_values,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		st.ID, st.ShipmentID, st.Name, st.Status, st.FieldSchema, st.FieldValues, st.CreatedAt, st.UpdatedAt)
	return err
}

func (r Repo) GetStep(ctx context.Context, shipmentID, name string) (domain.Step, error) {
	return scanStep(r.DB.QueryRowContext(ctx, `SELECT `+stepCols+` FROM steps WHERE shipment_id=? AND name=?`, shipmentID, name))
}

func (r Repo) GetStepByID(ctx context.Context, id string) (domain.Step, error) {
	return scanStep(r.DB.QueryRowContext(ctx, `SELECT `+stepCols+` FROM steps WHERE id=?`, id))
}

func (r Repo) ListSteps(ctx context.Context, shipmentID string) ([]domain.Step, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stepCols+` FROM steps WHERE shipment_id=? ORDER BY created_at, name`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSteps(rows)
}

// StepsByNameForKind reads one named step of every shipment of a kind; the
// allocation ledger scans export shipments' import-selection steps with it.
func (r Repo) StepsByNameForKind(ctx context.Context, name, kind string) ([]domain.Step, []domain.Shipment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT s.id,s.shipment_id,s.name,s.status,s.field_schema,s.field_values,s.created_at,s.updated_at,
		p.id,p.code,COALESCE(p.name,''),p.kind,p.status,COALESCE(p.route,''),COALESCE(p.boe_number,''),
		p.imported_quantity,p.imported_weight,p.created_at,p.updated_at
		FROM steps s JOIN shipments p ON p.id = s.shipment_id
		WHERE s.name=? AND p.kind=? ORDER BY p.created_at`, name, kind)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var steps []domain.Step
	var shipments []domain.Shipment
	for rows.Next() {
		var st domain.Step
		var sh domain.Shipment
		if err := rows.Scan(&st.ID, &st.ShipmentID, &st.Name, &st.Status, &st.FieldSchema, &st.FieldValues, &st.CreatedAt, &st.UpdatedAt,
			&sh.ID, &sh.Code, &sh.Name, &sh.Kind, &sh.Status, &sh.Route, &sh.BOENumber,
			&sh.ImportedQuantity, &sh.ImportedWeight, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
			return nil, nil, err
		}
		steps = append(steps, st)
		shipments = append(shipments, sh)
	}
	return steps, shipments, rows.Err()
}

func collectSteps(rows *sql.Rows) ([]domain.Step, error) {
	var res []domain.Step
	for rows.Next() {
		var st domain.Step
		if err := rows.Scan(&st.ID, &st.ShipmentID, &st.Name, &st.Status, &st.FieldSchema, &st.FieldValues, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func (r Repo) UpdateStepValuesTx(ctx context.Context, tx *sql.Tx, id, valuesJSON, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE steps SET field_values=?, updated_at=? WHERE id=?`, valuesJSON, updatedAt, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateStepSchemaTx(ctx context.Context, tx *sql.Tx, id, schemaJSON, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE steps SET field_schema=?, updated_at=? WHERE id=?`, schemaJSON, updatedAt, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateStepStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE steps SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocument(row *sql.Row) (domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.ID, &d.StepID, &d.TypeToken, &d.FileName, &d.UploadedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) InsertDocumentTx(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(id,step_id,type_token,file_name,uploaded_at) VALUES (?,?,?,?,?)`,
		d.ID, d.StepID, d.TypeToken, nullable(d.FileName), d.UploadedAt)
	return err
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return scanDocument(r.DB.QueryRowContext(ctx, `SELECT id,step_id,type_token,COALESCE(file_name,''),uploaded_at FROM documents WHERE id=?`, id))
}

func (r Repo) DeleteDocumentTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListStepDocuments(ctx context.Context, stepID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,step_id,type_token,COALESCE(file_name,''),uploaded_at FROM documents WHERE step_id=? ORDER BY uploaded_at`, stepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.StepID, &d.TypeToken, &d.FileName, &d.UploadedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ShipmentDocumentTokens lists every document-type token attached to any of
// a shipment's steps.
func (r Repo) ShipmentDocumentTokens(ctx context.Context, shipmentID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT d.type_token FROM documents d JOIN steps s ON s.id = d.step_id WHERE s.shipment_id=?`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, n int, shipmentID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(shipment_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var (
		where []string
		args  []any
	)
	if shipmentID != "" {
		where = append(where, "shipment_id=?")
		args = append(args, shipmentID)
	}
	if evtType != "" {
		where = append(where, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		where = append(where, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		where = append(where, "entity_id=?")
		args = append(args, entityID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ShipmentID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
