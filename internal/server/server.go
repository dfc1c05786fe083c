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

	"capeline/internal/domain"
	"capeline/internal/engine"
	"capeline/internal/gateway"
	"capeline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"transition_in_progress"`
	Message string         `json:"message" example:"a day transition is already processing for this save"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"difficulty\"}"`
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

type reply[T any] struct {
	Body T `json:"body"`
}

func ok[T any](v T) *reply[T] { return &reply[T]{Body: v} }

type slotPath struct {
	Slot string `path:"slot"`
}

type slotRaw struct {
	Slot    string `path:"slot"`
	RawBody []byte
}

// New returns an HTTP handler exposing the Capeline API.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Capeline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSaves(group, cfg.Engine)
	registerDay(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerMissions(group, cfg.Engine)
	registerWorld(group, cfg.Engine)
	registerPlayer(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerProgressStream(router, basePath, cfg.Engine)
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

// ruleErrors are refusals of a well-formed request by the current game state.
var ruleErrors = []struct {
	err  error
	code string
}{
	{engine.ErrTaskLocked, "task_locked"},
	{engine.ErrIdentityMismatch, "identity_mismatch"},
	{engine.ErrEffortExhausted, "effort_exhausted"},
	{engine.ErrNoDowntime, "no_downtime"},
	{engine.ErrAlreadyCompleted, "already_completed"},
	{engine.ErrNoPendingNews, "no_pending_news"},
	{engine.ErrOptionUnavailable, "option_unavailable"},
	{engine.ErrInsufficientFunds, "insufficient_funds"},
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": ve.Field, "reason": ve.Reason})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrTransitionInProgress) {
		return newAPIError(http.StatusConflict, "transition_in_progress", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrTransitionCancelled) {
		return newAPIError(http.StatusConflict, "transition_cancelled", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrSaveExists) {
		return newAPIError(http.StatusConflict, "save_exists", err.Error(), nil)
	}
	for _, re := range ruleErrors {
		if errors.Is(err, re.err) {
			return newAPIError(http.StatusConflict, re.code, err.Error(), nil)
		}
	}
	var te *engine.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusInternalServerError, "transition_failed", err.Error(), map[string]any{"day": te.Day})
	}
	if errors.Is(err, gateway.ErrUnavailable) {
		return newAPIError(http.StatusServiceUnavailable, "generation_unavailable", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
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
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
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
    <title>Capeline API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt;.
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
	}, func(ctx context.Context, _ *struct{}) (*reply[map[string]string], error) {
		return ok(map[string]string{"status": "ok"}), nil
	})
}

func registerSaves(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-saves",
		Method:      http.MethodGet,
		Path:        "/saves",
		Summary:     "List save slots",
	}, func(ctx context.Context, _ *struct{}) (*reply[[]domain.SaveSummary], error) {
		items, err := e.ListSaves(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-save",
		Method:        http.MethodPost,
		Path:          "/saves",
		Summary:       "Start a new game in a slot",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateSaveRequest `json:"body"`
	}) (*reply[domain.SaveFile], error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		s, err := e.NewGame(ctx, input.Body.Slot, domain.NewGameOptions{
			CivilianName: input.Body.CivilianName,
			SuperName:    input.Body.SuperName,
			Model:        input.Body.Model,
		}, input.Body.Overwrite)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-save",
		Method:      http.MethodGet,
		Path:        "/saves/{slot}",
		Summary:     "Load a save",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *slotPath) (*reply[domain.SaveFile], error) {
		s, err := e.Load(ctx, input.Slot)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-save",
		Method:      http.MethodDelete,
		Path:        "/saves/{slot}",
		Summary:     "Delete a save",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *slotPath) (*struct{}, error) {
		if err := e.DeleteSave(ctx, input.Slot); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-save",
		Method:      http.MethodGet,
		Path:        "/saves/{slot}/export",
		Summary:     "Export a save as {player, gameState}",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *slotPath) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		data, err := e.Export(ctx, input.Slot)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        "application/json",
			ContentDisposition: fmt.Sprintf(`attachment; filename="%s.json"`, input.Slot),
			Body:               data,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-save",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/import",
		Summary:     "Import an exported save into a slot",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Slot      string `path:"slot"`
		Overwrite bool   `query:"overwrite"`
		RawBody   []byte
	}) (*reply[domain.SaveFile], error) {
		if len(bytes.TrimSpace(input.RawBody)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		s, err := e.Import(ctx, input.Slot, input.RawBody, input.Overwrite)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPatch,
		Path:        "/saves/{slot}/settings",
		Summary:     "Update pacing and news settings",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *slotRaw) (*reply[domain.SaveFile], error) {
		set, herr := decodeBody[engine.Settings](input.RawBody)
		if herr != nil {
			return nil, herr
		}
		s, err := e.UpdateSettings(ctx, input.Slot, set)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})
}

func registerDay(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "advance-day",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/day/advance",
		Summary:     "Advance the calendar by one day",
		Description: "Runs the day transition. With async=true the transition runs in the background and the current progress is returned; follow it on /progress or /progress/stream.",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Slot  string `path:"slot"`
		Async bool   `query:"async"`
	}) (*reply[DayResponse], error) {
		if _, err := e.Load(ctx, input.Slot); err != nil {
			return nil, handleError(err)
		}
		if input.Async {
			p, err := e.StartDay(ctx, input.Slot)
			if err != nil {
				return nil, handleError(err)
			}
			return ok(DayResponse{Progress: &p}), nil
		}
		res, err := e.AdvanceDay(ctx, input.Slot)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(DayResponse{Report: &res.Report, PendingNews: res.PendingNews}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-day",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/day/cancel",
		Summary:     "Cancel a running day transition",
	}, func(ctx context.Context, input *slotPath) (*reply[CancelResponse], error) {
		return ok(CancelResponse{Cancelled: e.CancelDay(input.Slot)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/saves/{slot}/progress",
		Summary:     "Current day transition progress",
	}, func(ctx context.Context, input *slotPath) (*reply[engine.Progress], error) {
		return ok(e.Progress(input.Slot)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dismiss-progress",
		Method:      http.MethodDelete,
		Path:        "/saves/{slot}/progress",
		Summary:     "Acknowledge a finished or failed transition",
	}, func(ctx context.Context, input *slotPath) (*reply[engine.Progress], error) {
		e.DismissProgress(input.Slot)
		return ok(e.Progress(input.Slot)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-news",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/news/ack",
		Summary:     "Apply the pending news issue, optionally edited",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *slotRaw) (*reply[domain.SaveFile], error) {
		var edit engine.NewsEdit
		if len(bytes.TrimSpace(input.RawBody)) > 0 {
			var herr huma.StatusError
			if edit, herr = decodeBody[engine.NewsEdit](input.RawBody); herr != nil {
				return nil, herr
			}
		}
		s, err := e.AcknowledgeNews(ctx, input.Slot, edit)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/saves/{slot}/reports",
		Summary:     "Recent daily reports, newest first",
	}, func(ctx context.Context, input *struct {
		Slot  string `path:"slot"`
		Limit int    `query:"limit" default:"50"`
	}) (*reply[[]domain.StoredReport], error) {
		items, err := e.Reports(ctx, input.Slot, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return ok(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/saves/{slot}/reports/{day}",
		Summary:     "Daily report for one day",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slot string `path:"slot"`
		Day  int    `path:"day"`
	}) (*reply[domain.StoredReport], error) {
		r, err := e.Report(ctx, input.Slot, input.Day)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(r), nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/saves/{slot}/tasks",
		Summary:       "Add a task to the pool",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *slotRaw) (*reply[domain.Task], error) {
		t, herr := decodeBody[domain.Task](input.RawBody)
		if herr != nil {
			return nil, herr
		}
		created, err := e.AddTask(ctx, input.Slot, t)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(created), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/saves/{slot}/tasks/{task_id}",
		Summary:     "Remove a task from the pool and board",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Slot   string `path:"slot"`
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.Slot, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-suggestion",
		Method:        http.MethodPost,
		Path:          "/saves/{slot}/suggestions",
		Summary:       "Queue a prompt for the next task automator",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Slot string            `path:"slot"`
		Body SuggestionRequest `json:"body"`
	}) (*reply[domain.Suggestion], error) {
		sg, err := e.Suggest(ctx, input.Slot, input.Body.Prompt)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(sg), nil
	})
}

func registerMissions(api huma.API, e engine.Engine) {
	errs := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity}

	huma.Register(api, huma.Operation{
		OperationID: "resolve-check",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/tasks/{task_id}/check",
		Summary:     "Resolve a task with a skill check",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Slot   string       `path:"slot"`
		TaskID string       `path:"task_id"`
		Body   CheckRequest `json:"body"`
	}) (*reply[ResolutionResponse], error) {
		res, err := e.ResolveCheck(ctx, input.Slot, input.TaskID, input.Body.Stat)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(resolutionResponse(res, 0)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "play-structured",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/tasks/{task_id}/play",
		Summary:     "Walk a structured scenario",
		Description: "Choices are option indexes from the start node. Without a terminal choice the node to pick from next is returned and nothing is saved.",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Slot   string      `path:"slot"`
		TaskID string      `path:"task_id"`
		Body   PlayRequest `json:"body"`
	}) (*reply[ResolutionResponse], error) {
		res, err := e.PlayStructured(ctx, input.Slot, input.TaskID, input.Body.Choices)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(resolutionResponse(res, 0)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "narrate-turn",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/tasks/{task_id}/narrate",
		Summary:     "Next narrator beat of a freeform scene",
		Errors:      append(errs, http.StatusServiceUnavailable),
	}, func(ctx context.Context, input *struct {
		Slot   string            `path:"slot"`
		TaskID string            `path:"task_id"`
		Body   TranscriptRequest `json:"body"`
	}) (*reply[NarrationResponse], error) {
		text, err := e.NarrateTurn(ctx, input.Slot, input.TaskID, input.Body.Transcript)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(NarrationResponse{Text: text}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-freeform",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/tasks/{task_id}/complete",
		Summary:     "Judge and commit a freeform scene",
		Errors:      append(errs, http.StatusServiceUnavailable),
	}, func(ctx context.Context, input *struct {
		Slot   string            `path:"slot"`
		TaskID string            `path:"task_id"`
		Body   TranscriptRequest `json:"body"`
	}) (*reply[ResolutionResponse], error) {
		res, err := e.CompleteFreeform(ctx, input.Slot, input.TaskID, input.Body.Transcript)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(resolutionResponse(res, 0)), nil
	})
}

func registerWorld(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-automator",
		Method:        http.MethodPost,
		Path:          "/saves/{slot}/automators",
		Summary:       "Register a content automator",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *slotRaw) (*reply[domain.Automator], error) {
		a, herr := decodeBody[domain.Automator](input.RawBody)
		if herr != nil {
			return nil, herr
		}
		if !bytes.Contains(input.RawBody, []byte(`"active"`)) {
			a.Active = true
		}
		created, err := e.AddAutomator(ctx, input.Slot, a)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(created), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-automator",
		Method:      http.MethodPatch,
		Path:        "/saves/{slot}/automators/{automator_id}",
		Summary:     "Pause or resume an automator",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Slot        string                 `path:"slot"`
		AutomatorID string                 `path:"automator_id"`
		Body        AutomatorActiveRequest `json:"body"`
	}) (*struct{}, error) {
		if err := e.SetAutomatorActive(ctx, input.Slot, input.AutomatorID, input.Body.Active); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-automator",
		Method:      http.MethodDelete,
		Path:        "/saves/{slot}/automators/{automator_id}",
		Summary:     "Delete an automator",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Slot        string `path:"slot"`
		AutomatorID string `path:"automator_id"`
	}) (*struct{}, error) {
		if err := e.DeleteAutomator(ctx, input.Slot, input.AutomatorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-calendar-event",
		Method:        http.MethodPost,
		Path:          "/saves/{slot}/calendar",
		Summary:       "Schedule a calendar event",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *slotRaw) (*reply[domain.CalendarEvent], error) {
		ev, herr := decodeBody[domain.CalendarEvent](input.RawBody)
		if herr != nil {
			return nil, herr
		}
		created, err := e.AddCalendarEvent(ctx, input.Slot, ev)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(created), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-calendar-event",
		Method:      http.MethodDelete,
		Path:        "/saves/{slot}/calendar/{event_id}",
		Summary:     "Delete a calendar event",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Slot    string `path:"slot"`
		EventID string `path:"event_id"`
	}) (*struct{}, error) {
		if err := e.DeleteCalendarEvent(ctx, input.Slot, input.EventID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerPlayer(api huma.API, e engine.Engine) {
	errs := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity}

	huma.Register(api, huma.Operation{
		OperationID: "train",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/train",
		Summary:     "Spend downtime on training",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Slot string          `path:"slot"`
		Body ActivityRequest `json:"body"`
	}) (*reply[domain.SaveFile], error) {
		s, err := e.Train(ctx, input.Slot, input.Body.Activity)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "work",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/work",
		Summary:     "Spend downtime on a paid shift",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Slot string          `path:"slot"`
		Body ActivityRequest `json:"body"`
	}) (*reply[domain.SaveFile], error) {
		s, err := e.Work(ctx, input.Slot, input.Body.Activity)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "buy-upgrade",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/upgrades/{upgrade_id}/buy",
		Summary:     "Buy a base upgrade",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Slot      string `path:"slot"`
		UpgradeID string `path:"upgrade_id"`
	}) (*reply[domain.SaveFile], error) {
		s, err := e.BuyUpgrade(ctx, input.Slot, input.UpgradeID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upgrade-power",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/powers/{power_id}/upgrade",
		Summary:     "Spend skill points on a power level",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Slot    string `path:"slot"`
		PowerID string `path:"power_id"`
	}) (*reply[domain.SaveFile], error) {
		s, err := e.UpgradePower(ctx, input.Slot, input.PowerID)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "equip",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/equip",
		Summary:     "Equip an owned item",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Slot string       `path:"slot"`
		Body EquipRequest `json:"body"`
	}) (*reply[domain.SaveFile], error) {
		s, err := e.Equip(ctx, input.Slot, input.Body.ItemID, input.Body.Slot)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unequip",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/unequip",
		Summary:     "Return an equipped item to the inventory",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Slot string         `path:"slot"`
		Body UnequipRequest `json:"body"`
	}) (*reply[domain.SaveFile], error) {
		s, err := e.Unequip(ctx, input.Slot, input.Body.Slot)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "switch-identity",
		Method:      http.MethodPost,
		Path:        "/saves/{slot}/identity",
		Summary:     "Switch between civilian and super identity",
		Errors:      errs,
	}, func(ctx context.Context, input *struct {
		Slot string          `path:"slot"`
		Body IdentityRequest `json:"body"`
	}) (*reply[domain.SaveFile], error) {
		s, err := e.SwitchIdentity(ctx, input.Slot, input.Body.Identity)
		if err != nil {
			return nil, handleError(err)
		}
		return ok(s), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/saves/{slot}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Slot   string `path:"slot"`
		Type   string `query:"type"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*reply[paginatedEvents], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.Slot, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return ok(resp), nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*reply[WhoAmIResponse], error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return ok(WhoAmIResponse{ActorID: principal.ActorID, Source: principal.Source}), nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*reply[DevLoginResponse], error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, actor, 0)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return ok(DevLoginResponse{Token: token}), nil
	})
}

func decodeBody[T any](raw []byte) (T, huma.StatusError) {
	var v T
	if len(bytes.TrimSpace(raw)) == 0 {
		return v, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, newAPIError(http.StatusBadRequest, "bad_request", "invalid json body", map[string]any{"error": err.Error()})
	}
	return v, nil
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
