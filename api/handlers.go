/*
handlers.go - HTTP API handlers for the depreciation engine

PURPOSE:
  Exposes asset workflows, schedules and postings via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the assets
  service and the posting engine.

ENDPOINTS:
  Templates:
    GET    /api/templates                  List templates
    POST   /api/templates                  Create template from JSON
    GET    /api/templates/{name}           Get template

  Assets:
    GET    /api/assets                     List assets (?status=)
    POST   /api/assets                     Create Draft asset
    GET    /api/assets/{id}                Asset with serial units
    PUT    /api/assets/{id}                Update asset
    POST   /api/assets/{id}/submit         Submit (activates schedules)
    POST   /api/assets/{id}/cancel         Cancel (reverses postings)
    POST   /api/assets/{id}/scrap          Scrap asset or serial unit
    GET    /api/assets/{id}/schedules      Schedules (?serial_no=)
    GET    /api/assets/{id}/activities     Activity log

  Adjustments:
    POST   /api/assets/{id}/repairs        Record repair
    GET    /api/assets/{id}/repairs        List repairs (?serial_no=)
    POST   /api/repairs/{id}/complete      Complete and submit
    POST   /api/repairs/{id}/submit        Submit completed repair
    POST   /api/repairs/{id}/cancel        Cancel repair
    POST   /api/assets/{id}/revaluations   Revalue

  Posting:
    GET    /api/schedules/{id}             Schedule with postings
    POST   /api/schedules/{id}/post        Post due rows of one schedule
    POST   /api/depreciation/run           Sweep all due schedules
    GET    /api/depreciation/runs          Scheduler sweep history
    GET    /api/depreciation/settings      Posting switches
    PUT    /api/depreciation/settings      Toggle automatic posting
    GET    /api/postings/{id}              Get posting
    DELETE /api/postings/{id}              Cancel posting

  Settings:
    GET/PUT /api/companies/{name}
    GET/PUT /api/categories/{name}
    GET/PUT /api/accounts/{name}

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid template, invalid reference
  - 403: Caller may not post depreciation
  - 404: Resource not found
  - 409: Conflict (state transition, duplicate posting)
  - 422: Missing account or company configuration
  - 500: Internal errors

AUTHORIZATION:
  The actor comes from the X-Actor / X-Role headers (server.go). Only
  posting endpoints and the settings switch are guarded, by the engine's
  Authorizer.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/asset-engine/assets"
	"github.com/warp/asset-engine/depreciation"
	"github.com/warp/asset-engine/factory"
	"github.com/warp/asset-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// SweepRunStore records scheduler sweeps. Implemented by *sqlite.Store.
type SweepRunStore interface {
	SaveSweepRun(ctx context.Context, r sqlite.SweepRun) error
	ListSweepRuns(ctx context.Context, limit int) ([]sqlite.SweepRun, error)
}

// resetter wipes the store for demo scenarios.
type resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     depreciation.TxStore
	Assets    *assets.Service
	Engine    *depreciation.Engine
	Templates *factory.TemplateFactory
	Logger    *zap.Logger
	Today     func() depreciation.Date

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(st depreciation.TxStore, svc *assets.Service, engine *depreciation.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:     st,
		Assets:    svc,
		Engine:    engine,
		Templates: factory.NewTemplateFactory(),
		Logger:    logger,
		Today:     depreciation.Today,
		validate:  factory.NewValidator(),
	}
}

// =============================================================================
// TEMPLATE ENDPOINTS
// =============================================================================

// ListTemplates returns all templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListTemplates(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list templates", err)
		return
	}
	dtos := make([]factory.TemplateJSON, 0, len(list))
	for _, t := range list {
		dtos = append(dtos, h.Templates.ToJSON(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTemplate creates a template from JSON.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req factory.TemplateJSON
	if err := h.decode(r, &req, false); err != nil {
		h.writeDomainError(w, "Invalid template", err)
		return
	}
	t, err := h.Templates.FromJSON(req)
	if err != nil {
		h.writeDomainError(w, "Invalid template configuration", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetTemplate(ctx, t.Name); err == nil {
		writeError(w, http.StatusConflict, "Template already exists", fmt.Errorf("template %q", t.Name))
		return
	} else if !depreciation.IsNotFound(err) {
		h.writeDomainError(w, "Failed to create template", err)
		return
	}
	if err := h.Store.SaveTemplate(ctx, t); err != nil {
		h.writeDomainError(w, "Failed to create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Templates.ToJSON(t))
}

// GetTemplate returns one template.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.GetTemplate(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, "Template not found", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Templates.ToJSON(t))
}

// =============================================================================
// ASSET ENDPOINTS
// =============================================================================

// ListAssets returns all assets, optionally filtered by status.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListAssets(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list assets", err)
		return
	}
	status := depreciation.AssetStatus(r.URL.Query().Get("status"))
	out := make([]*depreciation.Asset, 0, len(list))
	for _, a := range list {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateAsset saves a Draft asset and builds its Draft schedules.
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req AssetRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	a, err := h.Assets.InsertAsset(r.Context(), req.toAsset())
	if err != nil {
		h.writeDomainError(w, "Failed to create asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAsset returns an asset with its serial units.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.Store.GetAsset(ctx, assetID(r))
	if err != nil {
		h.writeDomainError(w, "Asset not found", err)
		return
	}
	dto := AssetDetailDTO{Asset: a}
	if a.IsSerialized {
		if dto.SerialUnits, err = h.Store.ListSerialUnits(ctx, a.ID); err != nil {
			h.writeDomainError(w, "Failed to list serial units", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// UpdateAsset replaces the editable fields of an asset.
func (h *Handler) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	var req AssetRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	req.ID = string(assetID(r))
	a, err := h.Assets.UpdateAsset(r.Context(), req.toAsset())
	if err != nil {
		h.writeDomainError(w, "Failed to update asset", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// SubmitAsset submits a Draft asset.
func (h *Handler) SubmitAsset(w http.ResponseWriter, r *http.Request) {
	a, err := h.Assets.SubmitAsset(r.Context(), assetID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to submit asset", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CancelAsset cancels a submitted asset.
func (h *Handler) CancelAsset(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	a, err := h.Assets.CancelAsset(r.Context(), assetID(r), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel asset", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ScrapAsset scraps an asset, or one serial unit when serial_no is set.
func (h *Handler) ScrapAsset(w http.ResponseWriter, r *http.Request) {
	var req ScrapRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	date := req.Date
	if date.IsZero() {
		date = h.Today()
	}
	ref := depreciation.ParentRef{AssetID: assetID(r), SerialNo: req.SerialNo}
	p, err := h.Assets.ScrapAsset(r.Context(), ref, date, req.JournalEntry)
	if err != nil {
		h.writeDomainError(w, "Failed to scrap asset", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListAssetSchedules returns the schedules of an asset or serial unit.
func (h *Handler) ListAssetSchedules(w http.ResponseWriter, r *http.Request) {
	ref := depreciation.ParentRef{AssetID: assetID(r), SerialNo: r.URL.Query().Get("serial_no")}
	list, err := h.Store.ListSchedules(r.Context(), ref)
	if err != nil {
		h.writeDomainError(w, "Failed to list schedules", err)
		return
	}
	if list == nil {
		list = []*depreciation.Schedule{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ListAssetActivities returns the activity log of an asset.
func (h *Handler) ListAssetActivities(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListActivities(r.Context(), assetID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list activities", err)
		return
	}
	if list == nil {
		list = []depreciation.Activity{}
	}
	writeJSON(w, http.StatusOK, list)
}

// =============================================================================
// ADJUSTMENT ENDPOINTS
// =============================================================================

// CreateRepair records a repair against an asset or serial unit.
func (h *Handler) CreateRepair(w http.ResponseWriter, r *http.Request) {
	var req RepairRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	rep, err := h.Assets.CreateRepair(r.Context(), req.toRepair(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to create repair", err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

// ListRepairs returns the repairs of an asset or serial unit.
func (h *Handler) ListRepairs(w http.ResponseWriter, r *http.Request) {
	ref := depreciation.ParentRef{AssetID: assetID(r), SerialNo: r.URL.Query().Get("serial_no")}
	list, err := h.Store.ListRepairs(r.Context(), ref)
	if err != nil {
		h.writeDomainError(w, "Failed to list repairs", err)
		return
	}
	if list == nil {
		list = []depreciation.Repair{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CompleteRepair completes a pending repair and submits it.
func (h *Handler) CompleteRepair(w http.ResponseWriter, r *http.Request) {
	var req CompleteRepairRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	date := req.CompletionDate
	if date.IsZero() {
		date = h.Today()
	}
	rep, err := h.Assets.CompleteRepair(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		h.writeDomainError(w, "Failed to complete repair", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// SubmitRepair submits a completed repair.
func (h *Handler) SubmitRepair(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Assets.SubmitRepair(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to submit repair", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// CancelRepair cancels a repair and reverts its life change.
func (h *Handler) CancelRepair(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Assets.CancelRepair(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to cancel repair", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// CreateRevaluation revalues an asset or serial unit.
func (h *Handler) CreateRevaluation(w http.ResponseWriter, r *http.Request) {
	var req RevaluationRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	rev, err := h.Assets.Revalue(r.Context(), depreciation.Revaluation{
		ID:            req.ID,
		AssetID:       assetID(r),
		SerialNo:      req.SerialNo,
		FinanceBook:   req.FinanceBook,
		Date:          req.Date,
		NewAssetValue: req.NewAssetValue,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to revalue asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

// =============================================================================
// POSTING ENDPOINTS
// =============================================================================

// GetSchedule returns a schedule with its postings.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := depreciation.ScheduleID(chi.URLParam(r, "id"))
	s, err := h.Store.GetSchedule(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Schedule not found", err)
		return
	}
	postings, err := h.Store.ListPostings(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to list postings", err)
		return
	}
	if postings == nil {
		postings = []depreciation.Posting{}
	}
	writeJSON(w, http.StatusOK, ScheduleDetailDTO{Schedule: s, Postings: postings})
}

// PostSchedule posts the due rows of one schedule.
func (h *Handler) PostSchedule(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	date := req.Date
	if date.IsZero() {
		date = h.Today()
	}
	res, err := h.Engine.PostDepreciationEntries(r.Context(), depreciation.ScheduleID(chi.URLParam(r, "id")), date)
	if err != nil {
		h.writeDomainError(w, "Failed to post depreciation", err)
		return
	}
	if res.Postings == nil {
		res.Postings = []depreciation.Posting{}
	}
	writeJSON(w, http.StatusOK, res)
}

// RunDepreciation sweeps every due schedule. Per-schedule failures are
// reported in the body; the sweep itself still succeeds.
func (h *Handler) RunDepreciation(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	date := req.Date
	if date.IsZero() {
		date = h.Today()
	}

	var (
		report depreciation.SweepReport
		err    error
	)
	if req.Force {
		report, err = h.Engine.PostDue(r.Context(), date)
	} else {
		report, err = h.Engine.PostAllDepreciationEntries(r.Context(), date)
	}
	if err != nil {
		h.writeDomainError(w, "Failed to run depreciation", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetSettings returns the engine's posting switches.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsDTO(h.Engine.CurrentSettings()))
}

// UpdateSettings toggles automatic posting. The next scheduler tick
// picks up the new value.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	if err := h.Engine.Authorize(r.Context()); err != nil {
		h.writeDomainError(w, "Failed to update settings", err)
		return
	}
	h.Engine.SetAutomaticPosting(*req.AutomaticPostingEnabled)
	h.Logger.Info("automatic posting updated", zap.Bool("enabled", *req.AutomaticPostingEnabled))
	writeJSON(w, http.StatusOK, settingsDTO(h.Engine.CurrentSettings()))
}

func settingsDTO(s depreciation.Settings) SettingsDTO {
	return SettingsDTO{AutomaticPostingEnabled: s.AutomaticPostingEnabled, MaxConcurrency: s.MaxConcurrency}
}

// ListSweepRuns returns the recent scheduler sweeps.
func (h *Handler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	runs, ok := h.Store.(SweepRunStore)
	if !ok {
		writeJSON(w, http.StatusOK, []SweepRunDTO{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := runs.ListSweepRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to list sweep runs", err)
		return
	}
	dtos := make([]SweepRunDTO, 0, len(list))
	for _, run := range list {
		dto := SweepRunDTO{
			ID:        run.ID,
			RunDate:   run.RunDate.String(),
			Status:    run.Status,
			Schedules: run.Schedules,
			Postings:  run.Postings,
			Failures:  run.Failures,
			Error:     run.Error,
			StartedAt: formatTime(run.StartedAt),
		}
		if run.CompletedAt != nil {
			dto.CompletedAt = formatTime(*run.CompletedAt)
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPosting returns one posting.
func (h *Handler) GetPosting(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetPosting(r.Context(), depreciation.PostingID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Posting not found", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CancelPosting reverses a posting. The reason may come in the body or
// the reason query parameter.
func (h *Handler) CancelPosting(w http.ResponseWriter, r *http.Request) {
	var req CancelPostingRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		req.Reason = r.URL.Query().Get("reason")
	}
	ctx := r.Context()
	id := depreciation.PostingID(chi.URLParam(r, "id"))
	if err := h.Engine.CancelPosting(ctx, id, req.Reason); err != nil {
		h.writeDomainError(w, "Failed to cancel posting", err)
		return
	}
	p, err := h.Store.GetPosting(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to load posting", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// =============================================================================
// SETTINGS ENDPOINTS
// =============================================================================

// GetCompany returns company depreciation settings.
func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCompany(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, "Company not found", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SaveCompany stores company settings and drops the cached default book.
func (h *Handler) SaveCompany(w http.ResponseWriter, r *http.Request) {
	var c depreciation.Company
	if err := h.decode(r, &c, false); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	c.Name = chi.URLParam(r, "name")

	ctx := r.Context()
	if err := h.Store.SaveCompany(ctx, c); err != nil {
		h.writeDomainError(w, "Failed to save company", err)
		return
	}
	if h.Engine != nil && h.Engine.BookCache != nil {
		if err := h.Engine.BookCache.Invalidate(ctx, c.Name); err != nil {
			h.Logger.Warn("failed to invalidate default finance book",
				zap.String("company", c.Name),
				zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, c)
}

// GetCategory returns an asset category.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCategory(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, "Asset category not found", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SaveCategory stores an asset category. Its default templates must exist.
func (h *Handler) SaveCategory(w http.ResponseWriter, r *http.Request) {
	var c depreciation.Category
	if err := h.decode(r, &c, false); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	c.Name = chi.URLParam(r, "name")

	ctx := r.Context()
	for i, fb := range c.FinanceBooks {
		if fb.FinanceBook == "" {
			h.writeDomainError(w, "Invalid asset category", &depreciation.ValidationError{
				Field: fmt.Sprintf("finance_books[%d].finance_book", i), Message: "is required",
			})
			return
		}
		if _, err := h.Store.GetTemplate(ctx, fb.TemplateName); err != nil {
			h.writeDomainError(w, "Invalid asset category", fmt.Errorf("finance book %s: %w", fb.FinanceBook,
				&depreciation.ReferenceError{Message: fmt.Sprintf("template %q does not exist", fb.TemplateName)}))
			return
		}
	}
	if err := h.Store.SaveCategory(ctx, c); err != nil {
		h.writeDomainError(w, "Failed to save asset category", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetAccount returns an account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.GetAccount(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, "Account not found", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// SaveAccount stores an account.
func (h *Handler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	var a depreciation.Account
	if err := h.decode(r, &a, false); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	a.Name = chi.URLParam(r, "name")
	switch a.RootType {
	case depreciation.RootAsset, depreciation.RootLiability, depreciation.RootEquity,
		depreciation.RootIncome, depreciation.RootExpense:
	default:
		h.writeDomainError(w, "Invalid account", &depreciation.ValidationError{
			Field: "root_type", Message: fmt.Sprintf("unknown root type %q", a.RootType),
		})
		return
	}
	if err := h.Store.SaveAccount(r.Context(), a); err != nil {
		h.writeDomainError(w, "Failed to save account", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func assetID(r *http.Request) depreciation.AssetID {
	return depreciation.AssetID(chi.URLParam(r, "id"))
}

// decode reads a JSON body into v and validates it. With optional set, an
// empty body leaves v untouched.
func (h *Handler) decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case errors.Is(err, io.EOF) && optional:
		return nil
	case err != nil:
		return &depreciation.ValidationError{Field: "body", Message: err.Error()}
	}
	if err := h.validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return factory.ToValidationError(err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps a domain error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, depreciation.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case depreciation.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case depreciation.IsConflict(err):
		return http.StatusConflict, "conflict"
	case depreciation.IsMissingConfiguration(err):
		return http.StatusUnprocessableEntity, "missing_configuration"
	case errors.Is(err, depreciation.ErrInvalidTemplateConfiguration):
		return http.StatusBadRequest, "invalid_template"
	case errors.Is(err, depreciation.ErrInvalidReference):
		return http.StatusBadRequest, "invalid_reference"
	case depreciation.IsClientError(err):
		return http.StatusBadRequest, "validation_failed"
	}
	return http.StatusInternalServerError, "internal"
}

// writeDomainError writes err with the status statusFor picks. Internal
// errors are logged and their details hidden.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: message, Code: code}
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
		writeJSON(w, status, resp)
		return
	}
	var ve *depreciation.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	resp.Details = err.Error()
	writeJSON(w, status, resp)
}
