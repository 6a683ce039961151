// Package workflow derives the completion status of every step of a
// shipment's workflow from its answered field values, attached documents and
// route. Statuses are recomputed from scratch on every read; nothing here
// keeps transition history, so two readers over the same snapshot always
// agree.
package workflow

// Status is a step's derived completion state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusBlocked    Status = "BLOCKED"
)

// Route selects which checkpoint steps exist for a shipment and which
// terminal predicate the shared checkpoint names use.
type Route string

const (
	RouteJafzaToKSA    Route = "JAFZA_TO_KSA"
	RouteJafzaToJordan Route = "JAFZA_TO_JORDAN"
	RouteJafzaToSyria  Route = "JAFZA_TO_SYRIA_VIA_MUSHTARAKAH"
)

// Step names of the fixed pipeline.
const (
	StepPlanOverview      = "plan_overview"
	StepTrucksDetails     = "trucks_details"
	StepLoadingDetails    = "loading_details"
	StepImportSelection   = "import_selection"
	StepExportInvoice     = "export_invoice"
	StepStockView         = "stock_view"
	StepCustomsAllocation = "customs_allocation"
	StepCheckpointKSA     = "checkpoint_ksa"
	StepCheckpointJordan  = "checkpoint_jordan"
	StepCheckpointSyria   = "checkpoint_syria"
)

// Terminal names the flag/date pair whose presence completes a checkpoint.
type Terminal struct {
	Flag string
	Date string
}

// RouteSpec lists the checkpoints a route passes through and their terminal
// events. Checkpoint steps absent from the map are vacuously done on that
// route.
type RouteSpec struct {
	Checkpoints map[string]Terminal
}

// Catalog is the immutable workflow configuration: the ordered step list and
// the per-route checkpoint table. It is built once at startup and threaded
// through calls; there is no ambient global state.
type Catalog struct {
	Steps        []string
	Checkpoints  []string
	Routes       map[Route]RouteSpec
	DefaultRoute Route
}

// DefaultCatalog returns the stock freight-export workflow.
func DefaultCatalog() Catalog {
	return Catalog{
		Steps: []string{
			StepPlanOverview,
			StepTrucksDetails,
			StepLoadingDetails,
			StepImportSelection,
			StepExportInvoice,
			StepStockView,
			StepCustomsAllocation,
			StepCheckpointKSA,
			StepCheckpointJordan,
			StepCheckpointSyria,
		},
		Checkpoints: []string{StepCheckpointKSA, StepCheckpointJordan, StepCheckpointSyria},
		Routes: map[Route]RouteSpec{
			RouteJafzaToKSA: {
				Checkpoints: map[string]Terminal{
					StepCheckpointKSA: {Flag: "batha_delivered", Date: "batha_delivered_date"},
				},
			},
			RouteJafzaToJordan: {
				Checkpoints: map[string]Terminal{
					StepCheckpointKSA:    {Flag: "transit_exited", Date: "transit_exit_date"},
					StepCheckpointJordan: {Flag: "border_exited", Date: "border_exit_date"},
				},
			},
			RouteJafzaToSyria: {
				Checkpoints: map[string]Terminal{
					StepCheckpointKSA:    {Flag: "transit_exited", Date: "transit_exit_date"},
					StepCheckpointJordan: {Flag: "border_exited", Date: "border_exit_date"},
					StepCheckpointSyria:  {Flag: "delivered", Date: "delivered_date"},
				},
			},
		},
		DefaultRoute: RouteJafzaToKSA,
	}
}

// ParseRoute maps stored route text to a Route, falling back to the
// catalog's default for unrecognized values.
func (c Catalog) ParseRoute(s string) Route {
	r := Route(s)
	if _, ok := c.Routes[r]; ok {
		return r
	}
	return c.DefaultRoute
}

// routeSpec resolves the spec for r, falling back to the default route.
func (c Catalog) routeSpec(r Route) RouteSpec {
	if spec, ok := c.Routes[r]; ok {
		return spec
	}
	return c.Routes[c.DefaultRoute]
}

// CheckpointKey shortens a checkpoint step name to the key used for its
// group inside the customs-allocation step ("checkpoint_ksa" -> "ksa").
func CheckpointKey(step string) string {
	const prefix = "checkpoint_"
	if len(step) > len(prefix) && step[:len(prefix)] == prefix {
		return step[len(prefix):]
	}
	return step
}
