package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"reviewdesk/internal/domain"
	"reviewdesk/internal/engine"
	"reviewdesk/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"client cannot submit a deliverable in status draft"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"status\":\"draft\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Reviewdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Reviewdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerDeliverables(group, cfg.Engine)
	registerTransitions(group, cfg.Engine)
	registerNotes(group, cfg.Engine)
	registerInbox(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
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
	var pe engine.PermissionError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": string(pe.Role)})
	}
	var it engine.InvalidTransitionError
	if errors.As(err, &it) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"role":   string(it.Role),
			"status": string(it.Status),
			"action": string(it.Action),
		})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": ve.Field})
	}
	switch {
	case errors.Is(err, repo.ErrConcurrentModification):
		return newAPIError(http.StatusConflict, "concurrent_modification", err.Error(), nil)
	case errors.Is(err, engine.ErrNotEditable), errors.Is(err, engine.ErrDeliveredLocked):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

// requireProjectAccess checks that the caller may see the project. Admins see
// everything; clients must be members.
func requireProjectAccess(ctx context.Context, e engine.Engine, p Principal, projectID string) huma.StatusError {
	if p.Role == domain.RoleAdmin {
		return nil
	}
	scope, err := e.Repo.MemberProjectIDs(ctx, p.ActorID)
	if err != nil {
		return handleError(err)
	}
	for _, id := range scope {
		if id == projectID {
			return nil
		}
	}
	return newAPIError(http.StatusForbidden, "forbidden", "not a member of this project", nil)
}

// scopeFilters restricts a deliverable listing to the caller's projects.
func scopeFilters(ctx context.Context, e engine.Engine, p Principal, f repo.DeliverableFilters) (repo.DeliverableFilters, huma.StatusError) {
	if p.Role == domain.RoleAdmin {
		return f, nil
	}
	scope, err := e.Repo.MemberProjectIDs(ctx, p.ActorID)
	if err != nil {
		return f, handleError(err)
	}
	if len(scope) == 0 {
		// no memberships, nothing visible
		scope = []string{""}
	}
	f.ProjectIDs = scope
	return f, nil
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
			applyAuthSecurity(oas, basePath)
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
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
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
    <title>Reviewdesk API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
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

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.Role != domain.RoleAdmin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins create projects", nil)
		}
		p, err := e.InitProject(ctx, input.Body.ID, input.Body.Name, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if principal.Role != domain.RoleAdmin {
			scope, err := e.Repo.MemberProjectIDs(ctx, principal.ActorID)
			if err != nil {
				return nil, handleError(err)
			}
			member := map[string]bool{}
			for _, id := range scope {
				member[id] = true
			}
			var visible []domain.Project
			for _, p := range items {
				if member[p.ID] {
					visible = append(visible, p)
				}
			}
			items = visible
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireProjectAccess(ctx, e, principal, input.ProjectID); err != nil {
			return nil, err
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-status",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/status",
		Summary:     "Project deliverable counts",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireProjectAccess(ctx, e, principal, input.ProjectID); err != nil {
			return nil, err
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountDeliverablesByStatus(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"project_id":         p.ID,
			"status":             p.Status,
			"deliverable_counts": counts,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Body      struct {
			Status      string  `json:"status,omitempty"`
			Description *string `json:"description,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.Role != domain.RoleAdmin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins update projects", nil)
		}
		if err := e.Repo.UpdateProject(ctx, input.ProjectID, input.Body.Status, input.Body.Description); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.Role != domain.RoleAdmin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins delete projects", nil)
		}
		if err := e.Repo.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members",
		Summary:       "Add or update project member",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      AddMemberRequest `json:"body"`
	}) (*struct {
		Body MembershipResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.Role != domain.RoleAdmin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins manage members", nil)
		}
		m, err := e.AddMember(ctx, input.ProjectID, input.Body.ActorID, domain.Role(input.Body.Role), principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MembershipResponse `json:"body"`
		}{Body: membershipResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []MembershipResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireProjectAccess(ctx, e, principal, input.ProjectID); err != nil {
			return nil, err
		}
		items, err := e.Repo.ListMembers(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]MembershipResponse, 0, len(items))
		for _, m := range items {
			out = append(out, membershipResponse(m))
		}
		return &struct {
			Body []MembershipResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/members/{actor_id}",
		Summary:     "Remove project member",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ActorID   string `path:"actor_id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.Role != domain.RoleAdmin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins manage members", nil)
		}
		if err := e.Repo.RemoveMembership(ctx, input.ProjectID, input.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDeliverables(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-deliverable",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/deliverables",
		Summary:       "Create deliverable",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                   `path:"project_id"`
		Body      CreateDeliverableRequest `json:"body"`
	}) (*struct {
		Body DeliverableResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.CreateOptions{
			ProjectID: input.ProjectID,
			Title:     input.Body.Title,
			Type:      input.Body.Type,
			Files:     input.Body.Files,
			ActorID:   principal.ActorID,
			ActorRole: principal.Role,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		d, err := e.Create(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeliverableResponse `json:"body"`
		}{Body: deliverableResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-deliverables",
		Method:      http.MethodGet,
		Path:        "/deliverables",
		Summary:     "List deliverables",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Status    string `query:"status" enum:",draft,pending_review,needs_changes,approved,delivered"`
		Type      string `query:"type"`
		CreatedBy string `query:"created_by"`
		Limit     int    `query:"limit" minimum:"1" maximum:"200"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedDeliverables `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		f := repo.DeliverableFilters{
			ProjectID: input.ProjectID,
			Status:    domain.Status(input.Status),
			Type:      input.Type,
			CreatedBy: input.CreatedBy,
			Limit:     limit,
		}
		if input.Cursor != "" {
			createdAt, id, ok := decodeCursor(input.Cursor)
			if !ok {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			f.CursorCreatedAt = createdAt
			f.CursorID = id
		}
		f, scopeErr := scopeFilters(ctx, e, principal, f)
		if scopeErr != nil {
			return nil, scopeErr
		}
		items, err := e.Repo.ListDeliverables(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		res := paginatedDeliverables{Items: mapDeliverables(items)}
		if len(items) == limit {
			last := items[len(items)-1]
			res.NextCursor = encodeCursor(last.CreatedAt, last.ID)
		}
		return &struct {
			Body paginatedDeliverables `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-deliverable",
		Method:      http.MethodGet,
		Path:        "/deliverables/{id}",
		Summary:     "Get deliverable",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body DeliverableResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Repo.GetDeliverable(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireProjectAccess(ctx, e, principal, d.ProjectID); err != nil {
			return nil, err
		}
		return &struct {
			Body DeliverableResponse `json:"body"`
		}{Body: deliverableResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-deliverable",
		Method:      http.MethodPatch,
		Path:        "/deliverables/{id}",
		Summary:     "Edit deliverable metadata",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body UpdateDeliverableRequest `json:"body"`
	}) (*struct {
		Body DeliverableResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.UpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Type:        input.Body.Type,
			ActorID:     principal.ActorID,
			ActorRole:   principal.Role,
		}
		if input.Body.Files != nil {
			opts.Files = *input.Body.Files
			opts.FilesSet = true
		}
		d, err := e.Update(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeliverableResponse `json:"body"`
		}{Body: deliverableResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-deliverable",
		Method:      http.MethodDelete,
		Path:        "/deliverables/{id}",
		Summary:     "Delete deliverable",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Delete(ctx, input.ID, principal.Role, principal.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTransitions(api huma.API, e engine.Engine) {
	transitionErrors := []int{
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
	}

	huma.Register(api, huma.Operation{
		OperationID: "submit-deliverable",
		Method:      http.MethodPost,
		Path:        "/deliverables/{id}/submit",
		Summary:     "Submit deliverable for review",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body DeliverableResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireDeliverableAccess(ctx, e, principal, input.ID); err != nil {
			return nil, err
		}
		d, err := e.SubmitForReview(ctx, input.ID, principal.Role, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeliverableResponse `json:"body"`
		}{Body: deliverableResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-deliverable",
		Method:      http.MethodPost,
		Path:        "/deliverables/{id}/approve",
		Summary:     "Approve deliverable",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body ApproveRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body DeliverableResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireDeliverableAccess(ctx, e, principal, input.ID); err != nil {
			return nil, err
		}
		d, err := e.Approve(ctx, input.ID, principal.Role, principal.ActorID, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeliverableResponse `json:"body"`
		}{Body: deliverableResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-changes",
		Method:      http.MethodPost,
		Path:        "/deliverables/{id}/request-changes",
		Summary:     "Request changes on deliverable",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body RequestChangesRequest `json:"body"`
	}) (*struct {
		Body DeliverableResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireDeliverableAccess(ctx, e, principal, input.ID); err != nil {
			return nil, err
		}
		d, err := e.RequestChanges(ctx, input.ID, principal.Role, principal.ActorID, input.Body.Feedback)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeliverableResponse `json:"body"`
		}{Body: deliverableResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deliver-deliverable",
		Method:      http.MethodPost,
		Path:        "/deliverables/{id}/deliver",
		Summary:     "Mark deliverable as delivered",
		Errors:      transitionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body DeliverRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body DeliverableResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireDeliverableAccess(ctx, e, principal, input.ID); err != nil {
			return nil, err
		}
		d, err := e.Deliver(ctx, input.ID, principal.Role, principal.ActorID, input.Body.DeliveryNotes, input.Body.FinalFiles)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeliverableResponse `json:"body"`
		}{Body: deliverableResponse(d)}, nil
	})
}

// requireDeliverableAccess loads the deliverable and checks project
// membership for clients without changing anything.
func requireDeliverableAccess(ctx context.Context, e engine.Engine, p Principal, id string) huma.StatusError {
	if p.Role == domain.RoleAdmin {
		return nil
	}
	d, err := e.Repo.GetDeliverable(ctx, id)
	if err != nil {
		return handleError(err)
	}
	return requireProjectAccess(ctx, e, p, d.ProjectID)
}

func registerNotes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-review-notes",
		Method:      http.MethodGet,
		Path:        "/deliverables/{id}/notes",
		Summary:     "Review history for a deliverable",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []ReviewNoteResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Repo.GetDeliverable(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := requireProjectAccess(ctx, e, principal, d.ProjectID); err != nil {
			return nil, err
		}
		notes, err := e.Repo.ListReviewNotes(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ReviewNoteResponse, 0, len(notes))
		for _, n := range notes {
			out = append(out, noteResponse(n))
		}
		return &struct {
			Body []ReviewNoteResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerInbox(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "inbox",
		Method:      http.MethodGet,
		Path:        "/inbox",
		Summary:     "Deliverables waiting on the caller",
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []InboxItemResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.DeliverableFilters{ProjectID: input.ProjectID}
		f, scopeErr := scopeFilters(ctx, e, principal, f)
		if scopeErr != nil {
			return nil, scopeErr
		}
		items, err := e.Repo.ListDeliverables(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		inbox := engine.BuildInbox(items, principal.Role)
		out := make([]InboxItemResponse, 0, len(inbox))
		for _, item := range inbox {
			out = append(out, inboxItemResponse(item))
		}
		return &struct {
			Body []InboxItemResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "Project event log",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Type      string `query:"type"`
		EntityID  string `query:"entity_id"`
		Limit     int    `query:"limit" minimum:"1" maximum:"500"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireProjectAccess(ctx, e, principal, input.ProjectID); err != nil {
			return nil, err
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		var cursor int64
		if input.Cursor != "" {
			v, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			cursor = v
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit, cursor, input.ProjectID, input.Type, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		res := paginatedEvents{Items: make([]EventResponse, 0, len(items))}
		for _, ev := range items {
			res.Items = append(res.Items, eventResponse(ev))
		}
		if len(items) == limit {
			res.NextCursor = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: res}, nil
	})
}

func encodeCursor(createdAt, id string) string {
	return createdAt + "|" + id
}

func decodeCursor(raw string) (createdAt, id string, ok bool) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
