package handler

import (
	"context"

	appstock "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Transfers moves quantity between available stock and destinations
type Transfers interface {
	Move(ctx context.Context, req appstock.MoveRequest) (*appstock.MoveResult, error)
	Return(ctx context.Context, req appstock.ReturnRequest) (*appstock.MoveResult, error)
	Consume(ctx context.Context, req appstock.ConsumeRequest) (*appstock.MoveResult, error)
}

// Merger merges scanned lots into BMR templates
type Merger interface {
	MergeContribution(ctx context.Context, req appstock.MergeContributionRequest) (*appstock.MergeContributionResult, error)
}

// Receipts covers receiving and the administrative edits
type Receipts interface {
	Receive(ctx context.Context, req appstock.ReceiveRequest) (*appstock.ReceiptResult, error)
	UpdateVariant(ctx context.Context, req appstock.UpdateVariantRequest) (*appstock.VariantUpdateResult, error)
	ResolveTesting(ctx context.Context, req appstock.ResolveTestingRequest) (*appstock.VariantUpdateResult, error)
	OverridePartAvailable(ctx context.Context, req appstock.OverrideAvailableRequest) (*appstock.OverrideResult, error)
	DeleteVariant(ctx context.Context, scanCode string) error
	DeletePart(ctx context.Context, partNo string) error
}

// Reconciler recomputes stored part totals from the variants
type Reconciler interface {
	Reconcile(ctx context.Context, partNo string) (*appstock.ReconcileResult, error)
}

// Queries reads parts, variants, ledger entries and template lines
type Queries interface {
	GetPartWithVariants(ctx context.Context, partNo string) (*appstock.PartDetailResponse, error)
	GetVariant(ctx context.Context, scanCode string) (*appstock.VariantResponse, error)
	ListMovements(ctx context.Context, scanCode string, filter appstock.MovementListFilter) ([]appstock.MovementResponse, int64, error)
	ListTemplateLines(ctx context.Context, templateID string) ([]appstock.BMRTemplateLineResponse, error)
}

// StockHandler handles the stock ledger API endpoints
type StockHandler struct {
	BaseHandler
	transfers  Transfers
	merger     Merger
	receipts   Receipts
	reconciler Reconciler
	queries    Queries
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(transfers Transfers, merger Merger, receipts Receipts, reconciler Reconciler, queries Queries) *StockHandler {
	return &StockHandler{
		transfers:  transfers,
		merger:     merger,
		receipts:   receipts,
		reconciler: reconciler,
		queries:    queries,
	}
}

// RegisterRoutes mounts the stock endpoints on rg
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/receipts", h.Receive)
	rg.POST("/moves", h.Move)
	rg.POST("/returns", h.Return)
	rg.POST("/consumptions", h.Consume)

	bmr := rg.Group("/bmr/templates/:templateId")
	bmr.POST("/contributions", h.MergeContribution)
	bmr.GET("/lines", h.ListTemplateLines)

	parts := rg.Group("/parts/:partNo")
	parts.GET("", h.GetPart)
	parts.PUT("/available", h.OverrideAvailable)
	parts.POST("/recompute", h.Recompute)
	parts.DELETE("", h.DeletePart)

	variants := rg.Group("/variants/:scanCode")
	variants.GET("", h.GetVariant)
	variants.PUT("", h.UpdateVariant)
	variants.POST("/testing", h.ResolveTesting)
	variants.DELETE("", h.DeleteVariant)
	variants.GET("/movements", h.ListMovements)
}

// Receive registers a received lot, creating the part on first receipt
// POST /api/v1/stock/receipts
func (h *StockHandler) Receive(c *gin.Context) {
	var req dto.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.receipts.Receive(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Move moves available quantity of a lot to production, sales or a BMR template
// POST /api/v1/stock/moves
func (h *StockHandler) Move(c *gin.Context) {
	var req dto.MoveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.transfers.Move(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Return puts quantity held by a destination back into available stock
// POST /api/v1/stock/returns
func (h *StockHandler) Return(c *gin.Context) {
	var req dto.ReleaseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToReturnCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.transfers.Return(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Consume removes quantity held by a destination for good
// POST /api/v1/stock/consumptions
func (h *StockHandler) Consume(c *gin.Context) {
	var req dto.ReleaseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToConsumeCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.transfers.Consume(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// MergeContribution merges a batch of scans into a BMR template
// POST /api/v1/stock/bmr/templates/:templateId/contributions
func (h *StockHandler) MergeContribution(c *gin.Context) {
	var req dto.MergeContributionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand(c.Param("templateId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.merger.MergeContribution(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListTemplateLines lists the lines of a BMR template
// GET /api/v1/stock/bmr/templates/:templateId/lines
func (h *StockHandler) ListTemplateLines(c *gin.Context) {
	lines, err := h.queries.ListTemplateLines(c.Request.Context(), c.Param("templateId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, lines)
}

// GetPart returns a part with its variants and display totals
// GET /api/v1/stock/parts/:partNo
func (h *StockHandler) GetPart(c *gin.Context) {
	detail, err := h.queries.GetPartWithVariants(c.Request.Context(), c.Param("partNo"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, detail)
}

// OverrideAvailable sets the total available quantity of a part
// PUT /api/v1/stock/parts/:partNo/available
func (h *StockHandler) OverrideAvailable(c *gin.Context) {
	var req dto.OverrideAvailableRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand(c.Param("partNo"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.receipts.OverridePartAvailable(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Recompute rewrites the stored totals of a part from its variants
// POST /api/v1/stock/parts/:partNo/recompute
func (h *StockHandler) Recompute(c *gin.Context) {
	result, err := h.reconciler.Reconcile(c.Request.Context(), c.Param("partNo"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// DeletePart deletes a part and all of its variants
// DELETE /api/v1/stock/parts/:partNo
func (h *StockHandler) DeletePart(c *gin.Context) {
	if err := h.receipts.DeletePart(c.Request.Context(), c.Param("partNo")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// GetVariant returns a single lot
// GET /api/v1/stock/variants/:scanCode
func (h *StockHandler) GetVariant(c *gin.Context) {
	variant, err := h.queries.GetVariant(c.Request.Context(), c.Param("scanCode"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, variant)
}

// UpdateVariant edits a lot by hand
// PUT /api/v1/stock/variants/:scanCode
func (h *StockHandler) UpdateVariant(c *gin.Context) {
	var req dto.UpdateVariantRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand(c.Param("scanCode"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.receipts.UpdateVariant(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ResolveTesting records a quality testing outcome for a lot
// POST /api/v1/stock/variants/:scanCode/testing
func (h *StockHandler) ResolveTesting(c *gin.Context) {
	var req dto.ResolveTestingRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.receipts.ResolveTesting(c.Request.Context(), req.ToCommand(c.Param("scanCode")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// DeleteVariant deletes a lot that is not the last of its part
// DELETE /api/v1/stock/variants/:scanCode
func (h *StockHandler) DeleteVariant(c *gin.Context) {
	if err := h.receipts.DeleteVariant(c.Request.Context(), c.Param("scanCode")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ListMovements pages through the ledger of a lot, newest first
// GET /api/v1/stock/variants/:scanCode/movements
func (h *StockHandler) ListMovements(c *gin.Context) {
	req := dto.DefaultListRequest()
	if !h.BindQuery(c, &req) {
		return
	}

	entries, total, err := h.queries.ListMovements(c.Request.Context(), c.Param("scanCode"), appstock.MovementListFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, entries, total, req.Page, req.PageSize)
}
