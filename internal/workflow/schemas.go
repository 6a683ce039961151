package workflow

import "freightline/internal/schema"

// Field ids the deriver reads. Step schemas may declare more fields than
// these; the deriver only ever consumes the well-known ids below.
const (
	FieldOrderReceived     = "order_received"
	FieldOrderReceivedDate = "order_received_date"

	FieldPlannedTruckCount = "planned_truck_count"
	FieldActualTruckCount  = "actual_truck_count"
	FieldTrucks            = "trucks"
	FieldTruckNumber       = "truck_number"
	FieldDriverName        = "driver_name"
	FieldDriverContact     = "driver_contact"
	FieldBookingStatus     = "booking_status"
	FieldBookingDate       = "booking_date"

	FieldLoads          = "loads"
	FieldOrigin         = "origin"
	FieldLoaded         = "loaded"
	FieldWarehouseDate  = "warehouse_loading_date"
	FieldPortDate       = "port_loading_date"
	FieldCargoWeight    = "cargo_weight"
	FieldCargoQuantity  = "cargo_quantity"
	FieldCargoUnit      = "cargo_unit"
	FieldLoadingPhoto   = "loading_photo"

	FieldAllocations        = "allocations"
	FieldSourceShipmentID   = "source_shipment_id"
	FieldReference          = "reference"
	FieldBOENumber          = "boe_number"
	FieldProcessedAvailable = "processed_available"
	FieldImportedQuantity   = "imported_quantity"
	FieldImportedWeight     = "imported_weight"
	FieldAllocatedQuantity  = "allocated_quantity"
	FieldAllocatedWeight    = "allocated_weight"
	FieldExportDate         = "export_date"

	FieldInvoiceNumber = "invoice_number"
	FieldInvoiceDate   = "invoice_date"
	FieldInvoiceFile   = "invoice_file"
	FieldFinalized     = "finalized"

	FieldAgent     = "agent"
	FieldClearance = "clearance"
	FieldConfirmed = "confirmed"
	FieldConsignee = "consignee"
	FieldVisible   = "visible"
)

// DefaultSchema returns the stock field schema seeded for a step when a
// shipment is created. Unknown step names get an empty schema.
func (c Catalog) DefaultSchema(step string) schema.Schema {
	switch step {
	case StepPlanOverview:
		return schema.Schema{Version: 1, Fields: []schema.Field{
			{ID: FieldOrderReceived, Label: "Order received", Type: schema.TypeBoolean, Required: true},
			{ID: FieldOrderReceivedDate, Label: "Received date", Type: schema.TypeDate, Required: true},
		}}
	case StepTrucksDetails:
		return schema.Schema{Version: 1, Fields: []schema.Field{
			{ID: FieldPlannedTruckCount, Label: "Planned trucks", Type: schema.TypeNumber},
			{ID: FieldActualTruckCount, Label: "Actual trucks", Type: schema.TypeNumber},
			{ID: FieldTrucks, Label: "Trucks", Type: schema.TypeGroup, Repeatable: true, Required: true, Fields: []schema.Field{
				{ID: FieldTruckNumber, Label: "Truck number", Type: schema.TypeText, Required: true},
				{ID: FieldDriverName, Label: "Driver name", Type: schema.TypeText, Required: true},
				{ID: FieldDriverContact, Label: "Driver contact", Type: schema.TypeText, Required: true},
				{ID: FieldBookingStatus, Label: "Booking status", Type: schema.TypeText},
				{ID: FieldBookingDate, Label: "Booking date", Type: schema.TypeDate},
			}},
		}}
	case StepLoadingDetails:
		return schema.Schema{Version: 1, Fields: []schema.Field{
			{ID: FieldLoads, Label: "Loads", Type: schema.TypeGroup, Repeatable: true, Required: true, Fields: []schema.Field{
				{ID: FieldOrigin, Label: "Loading origin", Type: schema.TypeText, Required: true},
				{ID: FieldLoaded, Label: "Loaded", Type: schema.TypeBoolean, Required: true},
				{ID: FieldWarehouseDate, Label: "Warehouse loading date", Type: schema.TypeDate},
				{ID: FieldPortDate, Label: "Port loading date", Type: schema.TypeDate},
				{ID: FieldCargoWeight, Label: "Cargo weight", Type: schema.TypeNumber, Required: true},
				{ID: FieldCargoQuantity, Label: "Cargo quantity", Type: schema.TypeNumber, Required: true},
				{ID: FieldCargoUnit, Label: "Cargo unit", Type: schema.TypeText, Required: true},
				{ID: FieldLoadingPhoto, Label: "Loading photo", Type: schema.TypeFile},
			}},
		}}
	case StepImportSelection:
		return schema.Schema{Version: 1, Fields: []schema.Field{
			{ID: FieldAllocations, Label: "Allocations", Type: schema.TypeGroup, Repeatable: true, Required: true, Fields: []schema.Field{
				{ID: FieldSourceShipmentID, Label: "Source shipment", Type: schema.TypeText},
				{ID: FieldReference, Label: "Reference", Type: schema.TypeText, Required: true},
				{ID: FieldBOENumber, Label: "BOE number", Type: schema.TypeText},
				{ID: FieldProcessedAvailable, Label: "Processed and available", Type: schema.TypeBoolean, Required: true},
				{ID: FieldImportedQuantity, Label: "Imported quantity", Type: schema.TypeNumber},
				{ID: FieldImportedWeight, Label: "Imported weight", Type: schema.TypeNumber},
				{ID: FieldAllocatedQuantity, Label: "Allocated quantity", Type: schema.TypeNumber},
				{ID: FieldAllocatedWeight, Label: "Allocated weight", Type: schema.TypeNumber},
				{ID: FieldExportDate, Label: "Export date", Type: schema.TypeDate},
			}},
		}}
	case StepExportInvoice:
		return schema.Schema{Version: 1, Fields: []schema.Field{
			{ID: FieldInvoiceNumber, Label: "Invoice number", Type: schema.TypeText, Required: true},
			{ID: FieldInvoiceDate, Label: "Invoice date", Type: schema.TypeDate, Required: true},
			{ID: FieldInvoiceFile, Label: "Invoice document", Type: schema.TypeFile, Required: true},
			{ID: FieldFinalized, Label: "Finalized", Type: schema.TypeBoolean, Required: true},
		}}
	case StepCustomsAllocation:
		fields := make([]schema.Field, 0, len(c.Checkpoints))
		for _, cp := range c.Checkpoints {
			fields = append(fields, schema.Field{
				ID:    CheckpointKey(cp),
				Label: "Checkpoint " + CheckpointKey(cp),
				Type:  schema.TypeGroup,
				Fields: []schema.Field{
					{ID: FieldAgent, Label: "Agent", Type: schema.TypeText, Required: true},
					ClearanceField(),
				},
			})
		}
		return schema.Schema{Version: 1, Fields: fields}
	case StepCheckpointKSA:
		return schema.Schema{Version: 1, Fields: []schema.Field{
			{ID: "batha_delivered", Label: "Delivered at Batha", Type: schema.TypeBoolean},
			{ID: "batha_delivered_date", Label: "Batha delivery date", Type: schema.TypeDate},
			{ID: "transit_exited", Label: "Transit exit", Type: schema.TypeBoolean},
			{ID: "transit_exit_date", Label: "Transit exit date", Type: schema.TypeDate},
		}}
	case StepCheckpointJordan:
		return schema.Schema{Version: 1, Fields: []schema.Field{
			{ID: "border_exited", Label: "Border exit", Type: schema.TypeBoolean},
			{ID: "border_exit_date", Label: "Border exit date", Type: schema.TypeDate},
		}}
	case StepCheckpointSyria:
		return schema.Schema{Version: 1, Fields: []schema.Field{
			{ID: "delivered", Label: "Delivered", Type: schema.TypeBoolean},
			{ID: "delivered_date", Label: "Delivery date", Type: schema.TypeDate},
		}}
	default:
		return schema.Schema{Version: 1, Fields: []schema.Field{}}
	}
}

// ClearanceField is the branching clearance-mode choice used per checkpoint
// inside the customs-allocation step. The client branch is final: once a
// client clearance is confirmed, the zaxon branch's requirements are
// suppressed.
func ClearanceField() schema.Field {
	return schema.Field{
		ID:    FieldClearance,
		Label: "Clearance mode",
		Type:  schema.TypeChoice,
		Options: []schema.Option{
			{ID: string(ClearanceClient), Label: "Client clears", IsFinal: true, Fields: []schema.Field{
				{ID: FieldConfirmed, Label: "Client confirmed", Type: schema.TypeBoolean, Required: true},
			}},
			{ID: string(ClearanceZaxon), Label: "Zaxon clears", Fields: []schema.Field{
				{ID: FieldAgent, Label: "Clearing agent", Type: schema.TypeText, Required: true},
				{ID: FieldConsignee, Label: "Consignee", Type: schema.TypeText, Required: true},
				{ID: FieldVisible, Label: "Visible to client", Type: schema.TypeBoolean, Required: true},
			}},
		},
	}
}
