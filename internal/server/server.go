package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"freightline/internal/engine"
	"freightline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	BasePath string
	Logger   zerolog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"shipment not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Freightline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(cfg.Logger))
	hcfg := huma.DefaultConfig("Freightline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerShipments(group, cfg.Engine)
	registerSteps(group, cfg.Engine)
	registerDocuments(group, cfg.Engine)
	registerStock(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

// requestLogger logs one line per request with method, path, status and
// latency.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "must be") ||
		strings.Contains(lowered, "not an import"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Freightline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

// actorID reads the acting user from the X-Actor-Id header; anonymous
// callers are recorded as "api".
type ActorHeader struct {
	ActorID string `header:"X-Actor-Id"`
}

func (a ActorHeader) id() string {
	if a.ActorID == "" {
		return "api"
	}
	return a.ActorID
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerShipments(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-shipment",
		Method:        http.MethodPost,
		Path:          "/shipments",
		Summary:       "Create shipment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorHeader
		Body CreateShipmentRequest `json:"body"`
	}) (*struct {
		Body ShipmentResponse `json:"body"`
	}, error) {
		opts := engine.ShipmentCreateOptions{
			Code:    input.Body.Code,
			Kind:    input.Body.Kind,
			ActorID: input.id(),
		}
		if input.Body.Name != nil {
			opts.Name = *input.Body.Name
		}
		if input.Body.Route != nil {
			opts.Route = *input.Body.Route
		}
		if input.Body.BOENumber != nil {
			opts.BOENumber = *input.Body.BOENumber
		}
		if input.Body.ImportedQuantity != nil {
			opts.ImportedQuantity = *input.Body.ImportedQuantity
		}
		if input.Body.ImportedWeight != nil {
			opts.ImportedWeight = *input.Body.ImportedWeight
		}
		s, err := e.CreateShipment(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShipmentResponse `json:"body"`
		}{Body: shipmentResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-shipments",
		Method:      http.MethodGet,
		Path:        "/shipments",
		Summary:     "List shipments",
	}, func(ctx context.Context, input *struct {
		Kind   string `query:"kind"`
		Status string `query:"status"`
		Route  string `query:"route"`
	}) (*struct {
		Body []ShipmentResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListShipments(ctx, repo.ShipmentFilters{
			Kind: input.Kind, Status: input.Status, Route: input.Route,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ShipmentResponse `json:"body"`
		}{Body: mapShipments(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-shipment",
		Method:      http.MethodGet,
		Path:        "/shipments/{ref}",
		Summary:     "Get shipment by id or code",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Ref string `path:"ref"`
	}) (*struct {
		Body ShipmentResponse `json:"body"`
	}, error) {
		s, err := e.Repo.ResolveShipment(ctx, input.Ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShipmentResponse `json:"body"`
		}{Body: shipmentResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-shipment",
		Method:      http.MethodPatch,
		Path:        "/shipments/{ref}",
		Summary:     "Update shipment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorHeader
		Ref  string                `path:"ref"`
		Body UpdateShipmentRequest `json:"body"`
	}) (*struct {
		Body ShipmentResponse `json:"body"`
	}, error) {
		s, err := e.UpdateShipment(ctx, input.Ref, repo.ShipmentUpdate{
			Name:             input.Body.Name,
			Status:           input.Body.Status,
			Route:            input.Body.Route,
			BOENumber:        input.Body.BOENumber,
			ImportedQuantity: input.Body.ImportedQuantity,
			ImportedWeight:   input.Body.ImportedWeight,
		}, input.id())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ShipmentResponse `json:"body"`
		}{Body: shipmentResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-shipment",
		Method:      http.MethodDelete,
		Path:        "/shipments/{ref}",
		Summary:     "Delete shipment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorHeader
		Ref string `path:"ref"`
	}) (*struct{}, error) {
		if err := e.DeleteShipment(ctx, input.Ref, input.id()); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "shipment-status",
		Method:      http.MethodGet,
		Path:        "/shipments/{ref}/status",
		Summary:     "Derived status board",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Ref string `path:"ref"`
	}) (*struct {
		Body StatusBoardResponse `json:"body"`
	}, error) {
		board, err := e.ShipmentStatuses(ctx, input.Ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatusBoardResponse `json:"body"`
		}{Body: statusBoardResponse(board)}, nil
	})
}

func registerSteps(api huma.API, e *engine.Engine) {
	type StepPath struct {
		Ref  string `path:"ref"`
		Step string `path:"step"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-steps",
		Method:      http.MethodGet,
		Path:        "/shipments/{ref}/steps",
		Summary:     "List steps",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Ref string `path:"ref"`
	}) (*struct {
		Body []StepResponse `json:"body"`
	}, error) {
		s, err := e.Repo.ResolveShipment(ctx, input.Ref)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListSteps(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []StepResponse `json:"body"`
		}{Body: mapSteps(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-step",
		Method:      http.MethodGet,
		Path:        "/shipments/{ref}/steps/{step}",
		Summary:     "Get step",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *StepPath) (*struct {
		Body StepResponse `json:"body"`
	}, error) {
		s, err := e.Repo.ResolveShipment(ctx, input.Ref)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := e.Repo.GetStep(ctx, s.ID, input.Step)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StepResponse `json:"body"`
		}{Body: stepResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-step-values",
		Method:      http.MethodPatch,
		Path:        "/shipments/{ref}/steps/{step}/values",
		Summary:     "Set or remove step values by field path",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorHeader
		StepPath
		Body UpdateStepValuesRequest `json:"body"`
	}) (*struct {
		Body StepResponse `json:"body"`
	}, error) {
		if len(input.Body.Set) == 0 && len(input.Body.Remove) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "set or remove is required", nil)
		}
		st, err := e.UpdateStepValues(ctx, input.Ref, input.Step, engine.StepValueUpdate{
			Set:     input.Body.Set,
			Remove:  input.Body.Remove,
			ActorID: input.id(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StepResponse `json:"body"`
		}{Body: stepResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-step-schema",
		Method:      http.MethodPut,
		Path:        "/shipments/{ref}/steps/{step}/schema",
		Summary:     "Replace a step's field schema",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorHeader
		StepPath
		Body ImportSchemaRequest `json:"body"`
	}) (*struct {
		Body StepResponse `json:"body"`
	}, error) {
		st, err := e.ImportStepSchema(ctx, input.Ref, input.Step, input.Body.Schema, input.id())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StepResponse `json:"body"`
		}{Body: stepResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "block-step",
		Method:      http.MethodPost,
		Path:        "/shipments/{ref}/steps/{step}/block",
		Summary:     "Set or clear an operator hold",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorHeader
		StepPath
		Body BlockStepRequest `json:"body"`
	}) (*struct {
		Body StepResponse `json:"body"`
	}, error) {
		st, err := e.SetStepBlocked(ctx, input.Ref, input.Step, input.Body.Blocked, input.id())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StepResponse `json:"body"`
		}{Body: stepResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "missing-step-fields",
		Method:      http.MethodGet,
		Path:        "/shipments/{ref}/steps/{step}/missing",
		Summary:     "Unsatisfied required field paths",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *StepPath) (*struct {
		Body []string `json:"body"`
	}, error) {
		missing, err := e.MissingStepFields(ctx, input.Ref, input.Step)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: missing}, nil
	})
}

func registerDocuments(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "attach-document",
		Method:        http.MethodPost,
		Path:          "/shipments/{ref}/steps/{step}/documents",
		Summary:       "Attach a document to a step field",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorHeader
		Ref  string                `path:"ref"`
		Step string                `path:"step"`
		Body AttachDocumentRequest `json:"body"`
	}) (*struct {
		Body DocumentResponse `json:"body"`
	}, error) {
		fileName := ""
		if input.Body.FileName != nil {
			fileName = *input.Body.FileName
		}
		d, err := e.AttachDocument(ctx, input.Ref, input.Step, input.Body.Path, fileName, input.id())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DocumentResponse `json:"body"`
		}{Body: documentResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-step-documents",
		Method:      http.MethodGet,
		Path:        "/shipments/{ref}/steps/{step}/documents",
		Summary:     "List a step's documents",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Ref  string `path:"ref"`
		Step string `path:"step"`
	}) (*struct {
		Body []DocumentResponse `json:"body"`
	}, error) {
		s, err := e.Repo.ResolveShipment(ctx, input.Ref)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := e.Repo.GetStep(ctx, s.ID, input.Step)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListStepDocuments(ctx, st.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DocumentResponse `json:"body"`
		}{Body: mapDocuments(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "detach-document",
		Method:      http.MethodDelete,
		Path:        "/documents/{id}",
		Summary:     "Detach a document",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorHeader
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DetachDocument(ctx, input.ID, input.id()); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStock(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "shipment-stock",
		Method:      http.MethodGet,
		Path:        "/shipments/{ref}/stock",
		Summary:     "Remaining stock for an import shipment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Ref string `path:"ref"`
	}) (*struct {
		Body StockResponse `json:"body"`
	}, error) {
		s, err := e.Repo.ResolveShipment(ctx, input.Ref)
		if err != nil {
			return nil, handleError(err)
		}
		rem, err := e.StockReport(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StockResponse `json:"body"`
		}{Body: StockResponse{Shipment: shipmentResponse(s), Stock: rem}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stock-warnings",
		Method:      http.MethodGet,
		Path:        "/stock/warnings",
		Summary:     "Over-allocated import shipments",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		warnings, err := e.StockWarnings(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: warnings}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		N          int    `query:"n" minimum:"1" maximum:"1000"`
		ShipmentID string `query:"shipment_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		n := input.N
		if n == 0 {
			n = 50
		}
		items, err := e.Repo.LatestEvents(ctx, n, input.ShipmentID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
