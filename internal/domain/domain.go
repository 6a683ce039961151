package domain

type Shipment struct {
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

type Step struct {
	ID          string `json:"id"`
	ShipmentID  string `json:"shipment_id"`
	Name        string `json:"name"`
	Status      string `json:"status" enum:"PENDING,IN_PROGRESS,DONE,BLOCKED"`
	FieldSchema string `json:"field_schema"`
	FieldValues string `json:"field_values"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Document struct {
	ID         string `json:"id"`
	StepID     string `json:"step_id"`
	TypeToken  string `json:"type_token"`
	FileName   string `json:"file_name,omitempty"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ShipmentID string `json:"shipment_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
