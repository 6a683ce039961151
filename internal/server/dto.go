package server

import (
	"freightline/internal/domain"
	"freightline/internal/engine"
	"freightline/internal/ledger"
	"freightline/internal/workflow"
)

// Request payloads

type CreateShipmentRequest struct {
	Code             string   `json:"code"`
	Name             *string  `json:"name,omitempty"`
	Kind             string   `json:"kind" enum:"import,export"`
	Route            *string  `json:"route,omitempty"`
	BOENumber        *string  `json:"boe_number,omitempty"`
	ImportedQuantity *float64 `json:"imported_quantity,omitempty"`
	ImportedWeight   *float64 `json:"imported_weight,omitempty"`
}

type UpdateShipmentRequest struct {
	Name             *string  `json:"name,omitempty"`
	Status           *string  `json:"status,omitempty" enum:"active,archived"`
	Route            *string  `json:"route,omitempty"`
	BOENumber        *string  `json:"boe_number,omitempty"`
	ImportedQuantity *float64 `json:"imported_quantity,omitempty"`
	ImportedWeight   *float64 `json:"imported_weight,omitempty"`
}

type UpdateStepValuesRequest struct {
	Set    map[string]string `json:"set,omitempty"`
	Remove []string          `json:"remove,omitempty"`
}

type ImportSchemaRequest struct {
	Schema string `json:"schema"`
}

type BlockStepRequest struct {
	Blocked bool `json:"blocked"`
}

type AttachDocumentRequest struct {
	Path     string  `json:"path"`
	FileName *string `json:"file_name,omitempty"`
}

// Response payloads

type ShipmentResponse struct {
	ID               string  `json:"id"`
	Code             string  `json:"code"`
	Name             string  `json:"name,omitempty"`
	Kind             string  `json:"kind" enum:"import,export"`
	Status           string  `json:"status" enum:"active,archived"`
	Route            string  `json:"route,omitempty"`
	BOENumber        string  `json:"boe_number,omitempty"`
	ImportedQuantity float64 `json:"imported_quantity,omitempty"`
	ImportedWeight   float64 `json:"imported_weight,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

type StepResponse struct {
	ID          string `json:"id"`
	ShipmentID  string `json:"shipment_id"`
	Name        string `json:"name"`
	Status      string `json:"status" enum:"PENDING,IN_PROGRESS,DONE,BLOCKED"`
	FieldSchema string `json:"field_schema"`
	FieldValues string `json:"field_values"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type DocumentResponse struct {
	ID         string `json:"id"`
	StepID     string `json:"step_id"`
	TypeToken  string `json:"type_token"`
	FileName   string `json:"file_name,omitempty"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

type StatusBoardResponse struct {
	Shipment           ShipmentResponse           `json:"shipment"`
	Statuses           map[string]workflow.Status `json:"statuses"`
	Loading            workflow.Progress          `json:"loading_progress"`
	CanFinalizeInvoice bool                       `json:"can_finalize_invoice"`
	Warnings           []string                   `json:"warnings,omitempty"`
}

type StockResponse struct {
	Shipment ShipmentResponse `json:"shipment"`
	Stock    ledger.Remaining `json:"stock"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ShipmentID string `json:"shipment_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func shipmentResponse(s domain.Shipment) ShipmentResponse {
	return ShipmentResponse{
		ID:               s.ID,
		Code:             s.Code,
		Name:             s.Name,
		Kind:             s.Kind,
		Status:           s.Status,
		Route:            s.Route,
		BOENumber:        s.BOENumber,
		ImportedQuantity: s.ImportedQuantity,
		ImportedWeight:   s.ImportedWeight,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func mapShipments(items []domain.Shipment) []ShipmentResponse {
	out := make([]ShipmentResponse, 0, len(items))
	for _, s := range items {
		out = append(out, shipmentResponse(s))
	}
	return out
}

func stepResponse(st domain.Step) StepResponse {
	return StepResponse{
		ID:          st.ID,
		ShipmentID:  st.ShipmentID,
		Name:        st.Name,
		Status:      st.Status,
		FieldSchema: st.FieldSchema,
		FieldValues: st.FieldValues,
		CreatedAt:   st.CreatedAt,
		UpdatedAt:   st.UpdatedAt,
	}
}

func mapSteps(items []domain.Step) []StepResponse {
	out := make([]StepResponse, 0, len(items))
	for _, st := range items {
		out = append(out, stepResponse(st))
	}
	return out
}

func documentResponse(d domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:         d.ID,
		StepID:     d.StepID,
		TypeToken:  d.TypeToken,
		FileName:   d.FileName,
		UploadedAt: d.UploadedAt,
	}
}

func mapDocuments(items []domain.Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(items))
	for _, d := range items {
		out = append(out, documentResponse(d))
	}
	return out
}

func statusBoardResponse(b engine.StatusBoard) StatusBoardResponse {
	return StatusBoardResponse{
		Shipment:           shipmentResponse(b.Shipment),
		Statuses:           b.Derived.Statuses,
		Loading:            b.Derived.LoadingProgress,
		CanFinalizeInvoice: b.Derived.CanFinalizeInvoice,
		Warnings:           b.Derived.Warnings,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			ShipmentID: e.ShipmentID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return out
}
