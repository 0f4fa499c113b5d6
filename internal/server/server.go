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

	"loomline/internal/chart"
	"loomline/internal/domain"
	"loomline/internal/engine"
	"loomline/internal/engine/auth"
	"loomline/internal/repo"
	"loomline/internal/report"
)

// Config for the HTTP API handler.
type Config struct {
	Engine engine.Engine
	Auth   AuthConfig
	// BasePath defaults to /v0.
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"urgency: must be in 1..10"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Loomline API.
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
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Loomline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerLogin(group, cfg.Engine, cfg.Auth)
	registerProducts(group, cfg.Engine)
	registerOrders(group, cfg.Engine)
	registerSummary(group, cfg.Engine)
	registerReport(router, basePath, cfg.Engine)
	registerCharts(router, basePath, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	var de engine.DuplicateError
	if errors.As(err, &de) {
		return newAPIError(http.StatusConflict, "duplicate", err.Error(), map[string]any{"name": de.Name})
	}
	var se engine.InvalidStateError
	if errors.As(err, &se) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_state", err.Error(), map[string]any{"order_id": se.OrderID, "status": se.Status})
	}
	var ee auth.ExpiredError
	if errors.As(err, &ee) {
		return newAPIError(http.StatusUnauthorized, "access_expired", err.Error(), map[string]any{"access_until": ee.AccessUntil})
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
		return "invalid_state"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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

func registerLogin(api huma.API, e engine.Engine, authCfg AuthConfig) {
	svc := auth.New(e.Config)
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Errors:      []int{http.StatusUnauthorized, http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if input.Body.Username == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "username and password are required", nil)
		}
		res, err := svc.Authenticate(input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		ttl := sessionTTL(e)
		token, expires, err := IssueToken(res, authCfg.JWTSecret, ttl, e.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339)}}, nil
	})
}

func registerProducts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-product",
		Method:        http.MethodPost,
		Path:          "/products",
		Summary:       "Add a product type",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateProductRequest `json:"body"`
	}) (*struct {
		Body ProductResponse `json:"body"`
	}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.AddProduct(ctx, input.Body.Name, input.Body.StandardHours)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProductResponse `json:"body"`
		}{Body: productResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-products",
		Method:      http.MethodGet,
		Path:        "/products",
		Summary:     "List the product catalog",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProductResponse `json:"body"`
	}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProducts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProductResponse `json:"body"`
		}{Body: mapProducts(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-product",
		Method:      http.MethodPatch,
		Path:        "/products/{name}",
		Summary:     "Rename or re-hour a product type",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Name string               `path:"name"`
		Body UpdateProductRequest `json:"body"`
	}) (*struct {
		Body ProductResponse `json:"body"`
	}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProduct(ctx, engine.ProductUpdateOptions{
			Name:     input.Name,
			NewName:  input.Body.NewName,
			NewHours: input.Body.StandardHours,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProductResponse `json:"body"`
		}{Body: productResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-product",
		Method:      http.MethodDelete,
		Path:        "/products/{name}",
		Summary:     "Remove a product type",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct{}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveProduct(ctx, input.Name); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-order",
		Method:        http.MethodPost,
		Path:          "/orders",
		Summary:       "Submit an order",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body SubmitOrderRequest `json:"body"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		o, err := e.SubmitOrder(ctx, engine.OrderSubmitOptions{
			Name:     input.Body.Name,
			Product:  input.Body.Product,
			Urgency:  input.Body.Urgency,
			Cost:     input.Body.Cost,
			Deadline: input.Body.Deadline,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(o, riskFlag(e, o))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List orders; open orders come back ranked by score",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"open,completed,all" default:"open"`
	}) (*struct {
		Body []OrderResponse `json:"body"`
	}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListOrders(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]OrderResponse, 0, len(items))
		for _, o := range items {
			res = append(res, orderResponse(o, riskFlag(e, o)))
		}
		return &struct {
			Body []OrderResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Get an order",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		o, err := e.GetOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(o, riskFlag(e, o))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-order",
		Method:      http.MethodPost,
		Path:        "/orders/{order_id}/complete",
		Summary:     "Mark an order completed",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body OrderResponse `json:"body"`
	}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		o, err := e.Complete(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrderResponse `json:"body"`
		}{Body: orderResponse(o, false)}, nil
	})
}

func registerSummary(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "summary",
		Method:      http.MethodGet,
		Path:        "/summary",
		Summary:     "Order counts, planned hours and capacity utilization",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SummaryResponse `json:"body"`
	}, error) {
		if _, authErr := usernameFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		all, err := e.ListOrders(ctx, "all")
		if err != nil {
			return nil, handleError(err)
		}
		open, err := e.ListOpen(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		now := e.Now()
		capacity := e.Config.WeeklyCapacity()
		atRisk := engine.AtRisk(open, e.Config.Alerts.DeadlineHorizonDays, now)
		ids := make([]string, 0, len(atRisk))
		for _, o := range atRisk {
			ids = append(ids, o.ID)
		}
		return &struct {
			Body SummaryResponse `json:"body"`
		}{Body: SummaryResponse{
			Counts:         engine.SummaryCounts(all, now),
			PlannedHours:   engine.PlannedHours(open),
			WeeklyCapacity: capacity,
			Utilization:    engine.Utilization(open, capacity),
			AtRiskOrders:   ids,
		}}, nil
	})
}

// registerReport serves the printable production order sheet as raw bytes;
// it sits on the router directly because the payload is not JSON.
func registerReport(r chi.Router, basePath string, e engine.Engine) {
	r.Get(path.Join(basePath, "report/production-order"), func(w http.ResponseWriter, req *http.Request) {
		if _, ok := principalFromContext(req.Context()); !ok {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		open, err := e.ListOpen(req.Context())
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		sheet := report.RenderOrderSheet(open, e.Now())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="production-order.txt"`)
		w.Write(sheet)
	})
}

func registerCharts(r chi.Router, basePath string, e engine.Engine) {
	serveSVG := func(w http.ResponseWriter, req *http.Request, build func([]domain.Order) []byte) {
		if _, ok := principalFromContext(req.Context()); !ok {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		open, err := e.ListOpen(req.Context())
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(build(open))
	}
	r.Get(path.Join(basePath, "charts/priority.svg"), func(w http.ResponseWriter, req *http.Request) {
		serveSVG(w, req, PriorityChart)
	})
	r.Get(path.Join(basePath, "charts/capacity.svg"), func(w http.ResponseWriter, req *http.Request) {
		serveSVG(w, req, func(open []domain.Order) []byte {
			return CapacityChart(open, e.Config.WeeklyCapacity())
		})
	})
}

// PriorityChart draws one bar per open order, highest score first, colored
// by urgency.
func PriorityChart(open []domain.Order) []byte {
	bars := make([]chart.Bar, 0, len(open))
	for _, o := range open {
		bars = append(bars, chart.Bar{Label: o.Name, Value: o.Score, Color: urgencyColor(o.Urgency)})
	}
	return chart.RenderSVG("Order Priority (higher = produce sooner)", bars)
}

// CapacityChart compares planned hours against the weekly capacity.
func CapacityChart(open []domain.Order, weeklyCapacity float64) []byte {
	return chart.RenderSVG("Weekly Capacity", []chart.Bar{
		{Label: "Planned Hours", Value: engine.PlannedHours(open), Color: "#f58518"},
		{Label: "Total Capacity", Value: weeklyCapacity, Color: "#4c78a8"},
	})
}

func urgencyColor(urgency int) string {
	switch {
	case urgency >= 8:
		return "#e45756"
	case urgency >= 5:
		return "#f58518"
	default:
		return "#4c78a8"
	}
}

func riskFlag(e engine.Engine, o domain.Order) bool {
	return engine.DeadlineRisk(o, e.Config.Alerts.DeadlineHorizonDays, e.Now())
}

func sessionTTL(e engine.Engine) time.Duration {
	return time.Duration(e.Config.Auth.SessionTTLHours) * time.Hour
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
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	loginPath := path.Join("/", basePath, "auth/login")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == loginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
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
    <title>Loomline API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate via POST /auth/login, then send Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}
