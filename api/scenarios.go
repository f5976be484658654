/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates a company with its
	depreciation accounts, templates, an asset category and one or more
	submitted assets, then posts depreciation up to a fixed date.

AVAILABLE SCENARIOS:

	straight-line:  120,000 machine, straight line main book plus a
	                double declining tax book, six months posted
	serialized:     three laptops tracked as serial units, one month posted
	repair:         repair extending the useful life after three postings
	revaluation:    revaluation to 100,000 after three postings

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create templates via factory presets
 3. Create company, accounts and asset category
 4. Insert and submit assets through the assets service
 5. Post depreciation as the system actor
 6. Optionally apply repairs or revaluations

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "repair"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to scenarioLoaders

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - factory/template.go: Template JSON presets
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/asset-engine/depreciation"
	"github.com/warp/asset-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "straight-line",
		Name:        "Straight Line",
		Description: "Machine on a 12 month straight line main book and a 5 year double declining tax book",
	},
	{
		ID:          "serialized",
		Name:        "Serialized Laptops",
		Description: "Three laptops depreciated per serial number",
	},
	{
		ID:          "repair",
		Name:        "Repair",
		Description: "Repair extends the useful life by 12 months after three postings",
	},
	{
		ID:          "revaluation",
		Name:        "Revaluation",
		Description: "Asset revalued to 100,000 after three postings",
	},
}

const (
	demoCompany  = "Warp Industries"
	demoCategory = "Machinery"
	demoBook     = "Main Book"
	demoTaxBook  = "Tax Book"
	demoSL12     = "SL 12 Months"
	demoDDB5     = "DDB 5 Years"
	demoWDV      = "WDV Vehicles"

	accumulatedAccount = "Accumulated Depreciation - WI"
	expenseAccount     = "Depreciation - WI"
)

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"straight-line": h.loadStraightLineScenario,
		"serialized":    h.loadSerializedScenario,
		"repair":        h.loadRepairScenario,
		"revaluation":   h.loadRevaluationScenario,
	}
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

// ListScenarios returns the available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
}

// LoadScenario resets the database and loads one scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeDomainError(w, "Invalid request body", err)
		return
	}
	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.writeDomainError(w, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.writeDomainError(w, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(resetter)
	if !ok {
		return fmt.Errorf("store %T cannot be reset", h.Store)
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	if h.Engine != nil && h.Engine.BookCache != nil {
		return h.Engine.BookCache.Invalidate(ctx, demoCompany)
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStraightLineScenario(ctx context.Context) error {
	if err := h.seedSettings(ctx); err != nil {
		return err
	}
	a := demoAsset("MACH-0001", "CNC Lathe")
	a.FinanceBooks = append(a.FinanceBooks, depreciation.FinanceBookEntry{
		FinanceBook:                  demoTaxBook,
		TemplateName:                 demoDDB5,
		SalvageValue:                 decimal.NewFromInt(10000),
		DepreciationPostingStartDate: depreciation.MustParseDate("2024-12-31"),
	})
	if err := h.insertAndSubmit(ctx, a); err != nil {
		return err
	}
	return h.postUpTo(ctx, "2024-06-30")
}

func (h *Handler) loadSerializedScenario(ctx context.Context) error {
	if err := h.seedSettings(ctx); err != nil {
		return err
	}
	a := demoAsset("IT-0001", "Developer Laptops")
	a.GrossPurchaseAmount = decimal.NewFromInt(7200)
	a.IsSerialized = true
	a.NumOfAssets = 3
	a.SerialNoSeries = "LT-.####"
	if err := h.insertAndSubmit(ctx, a); err != nil {
		return err
	}
	return h.postUpTo(ctx, "2024-01-31")
}

func (h *Handler) loadRepairScenario(ctx context.Context) error {
	if err := h.seedSettings(ctx); err != nil {
		return err
	}
	a := demoAsset("MACH-0002", "Hydraulic Press")
	if err := h.insertAndSubmit(ctx, a); err != nil {
		return err
	}
	if err := h.postUpTo(ctx, "2024-03-31"); err != nil {
		return err
	}
	rep, err := h.Assets.CreateRepair(ctx, depreciation.Repair{
		AssetID:             a.ID,
		FailureDate:         depreciation.MustParseDate("2024-04-02"),
		RepairCost:          decimal.NewFromInt(500),
		IncreaseInAssetLife: 12,
		Description:         "spindle replaced",
	})
	if err != nil {
		return err
	}
	_, err = h.Assets.CompleteRepair(ctx, rep.ID, depreciation.MustParseDate("2024-04-10"))
	return err
}

func (h *Handler) loadRevaluationScenario(ctx context.Context) error {
	if err := h.seedSettings(ctx); err != nil {
		return err
	}
	a := demoAsset("MACH-0003", "Injection Moulder")
	if err := h.insertAndSubmit(ctx, a); err != nil {
		return err
	}
	if err := h.postUpTo(ctx, "2024-03-31"); err != nil {
		return err
	}
	_, err := h.Assets.Revalue(ctx, depreciation.Revaluation{
		AssetID:       a.ID,
		Date:          depreciation.MustParseDate("2024-04-15"),
		NewAssetValue: decimal.NewFromInt(100000),
	})
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// seedSettings creates the demo company, its accounts, the templates and
// the asset category.
func (h *Handler) seedSettings(ctx context.Context) error {
	for _, js := range []string{
		factory.StraightLineJSON(demoSL12, 12),
		factory.DoubleDecliningJSON(demoDDB5, 5),
		factory.WrittenDownValueJSON(demoWDV, "quarterly", 4, "25"),
	} {
		if err := h.createTemplateFromJSON(ctx, js); err != nil {
			return err
		}
	}
	if err := h.Store.SaveAccount(ctx, depreciation.Account{
		Name: accumulatedAccount, Company: demoCompany, RootType: depreciation.RootAsset,
	}); err != nil {
		return err
	}
	if err := h.Store.SaveAccount(ctx, depreciation.Account{
		Name: expenseAccount, Company: demoCompany, RootType: depreciation.RootExpense,
	}); err != nil {
		return err
	}
	if err := h.Store.SaveCompany(ctx, depreciation.Company{
		Name:                           demoCompany,
		DefaultFinanceBook:             demoBook,
		AccumulatedDepreciationAccount: accumulatedAccount,
		DepreciationExpenseAccount:     expenseAccount,
		DepreciationCostCenter:         "Main - WI",
	}); err != nil {
		return err
	}
	return h.Store.SaveCategory(ctx, depreciation.Category{
		Name:         demoCategory,
		FinanceBooks: []depreciation.CategoryFinanceBook{{FinanceBook: demoBook, TemplateName: demoSL12}},
	})
}

func (h *Handler) createTemplateFromJSON(ctx context.Context, jsonStr string) error {
	t, err := h.Templates.ParseTemplate(jsonStr)
	if err != nil {
		return err
	}
	return h.Store.SaveTemplate(ctx, t)
}

// demoAsset returns a 120,000 asset available from 2024-01-01 on the main
// book, first posting at January end.
func demoAsset(id, name string) *depreciation.Asset {
	return &depreciation.Asset{
		ID:                    depreciation.AssetID(id),
		Name:                  name,
		Company:               demoCompany,
		Category:              demoCategory,
		GrossPurchaseAmount:   decimal.NewFromInt(120000),
		PurchaseDate:          depreciation.MustParseDate("2024-01-01"),
		AvailableForUseDate:   depreciation.MustParseDate("2024-01-01"),
		CalculateDepreciation: true,
		NumOfAssets:           1,
		FinanceBooks: []depreciation.FinanceBookEntry{{
			FinanceBook:                  demoBook,
			TemplateName:                 demoSL12,
			DepreciationPostingStartDate: depreciation.MustParseDate("2024-01-31"),
		}},
	}
}

func (h *Handler) insertAndSubmit(ctx context.Context, a *depreciation.Asset) error {
	if _, err := h.Assets.InsertAsset(ctx, a); err != nil {
		return err
	}
	_, err := h.Assets.SubmitAsset(ctx, a.ID)
	return err
}

// postUpTo posts every due row as the system actor.
func (h *Handler) postUpTo(ctx context.Context, date string) error {
	report, err := h.Engine.PostDue(depreciation.WithActor(ctx, depreciation.SystemActor), depreciation.MustParseDate(date))
	if err != nil {
		return err
	}
	if report.Failed() {
		return fmt.Errorf("posting up to %s: %w", date, report.Failures[0].Err)
	}
	return nil
}
