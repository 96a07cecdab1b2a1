package handler

import (
	appcustody "github.com/erp/custody/internal/application/custody"
	"github.com/erp/custody/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// CustodyHandler exposes the advance ledger, settlement and transfer operations
type CustodyHandler struct {
	BaseHandler
	services *appcustody.Services
}

// NewCustodyHandler creates a new CustodyHandler
func NewCustodyHandler(services *appcustody.Services) *CustodyHandler {
	return &CustodyHandler{services: services}
}

// RegisterRoutes mounts the custody endpoints on rg
func (h *CustodyHandler) RegisterRoutes(rg *gin.RouterGroup) {
	advances := rg.Group("/advances")
	advances.POST("", h.IssueAdvance)
	advances.GET("/open", h.ListOpenAdvances)
	advances.GET("/:id", h.GetAdvance)
	advances.GET("/:id/settlements", h.ListSettlements)
	advances.GET("/:id/conservation", h.CheckConservation)
	advances.POST("/:id/approval", h.RecordApprovalDecision)
	advances.POST("/:id/settlements/expense", h.SettleAsExpense)
	advances.POST("/:id/settlements/return", h.SettleAsReturn)
	advances.POST("/:id/transfer", h.TransferAdvance)
}

// IssueAdvance godoc
// @Summary      Issue a petty-cash advance
// @Description  Creates a PENDING advance for an employee or an external holder
// @Tags         advances
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        request body dto.IssueAdvanceRequest true "Advance to issue"
// @Success      201 {object} dto.Response{data=dto.AdvanceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /custody/advances [post]
func (h *CustodyHandler) IssueAdvance(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var req dto.IssueAdvanceRequest
	if !h.bindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	advance, err := h.services.Ledger.IssueAdvance(c.Request.Context(), scope, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToAdvanceResponse(advance))
}

// RecordApprovalDecision godoc
// @Summary      Approve or reject a pending advance
// @Tags         advances
// @Accept       json
// @Produce      json
// @Param        id path string true "Advance ID"
// @Param        request body dto.ApprovalRequest true "Decision"
// @Success      200 {object} dto.Response{data=dto.AdvanceResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /custody/advances/{id}/approval [post]
func (h *CustodyHandler) RecordApprovalDecision(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req dto.ApprovalRequest
	if !h.bindJSON(c, &req) {
		return
	}

	advance, err := h.services.Ledger.RecordApprovalDecision(c.Request.Context(), scope, id, *req.Approved, req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToAdvanceResponse(advance))
}

// GetAdvance godoc
// @Summary      Get an advance
// @Tags         advances
// @Produce      json
// @Param        id path string true "Advance ID"
// @Success      200 {object} dto.Response{data=dto.AdvanceResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /custody/advances/{id} [get]
func (h *CustodyHandler) GetAdvance(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	advance, err := h.services.Ledger.GetAdvance(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToAdvanceResponse(advance))
}

// ListOpenAdvances godoc
// @Summary      List advances that can still receive settlements
// @Description  Newest first; filter by holder or cost center, or general_only for advances without one
// @Tags         advances
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        holder_id query string false "Employee holder ID"
// @Param        holder_name query string false "External holder name"
// @Param        cost_center_id query string false "Cost center ID"
// @Param        general_only query bool false "Only advances without a cost center"
// @Success      200 {object} dto.Response{data=[]dto.AdvanceResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /custody/advances/open [get]
func (h *CustodyHandler) ListOpenAdvances(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	var query dto.OpenAdvancesQuery
	if !h.bindQuery(c, &query) {
		return
	}
	filter, err := query.ToFilter()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page, err := h.services.Ledger.ListOpenAdvances(c.Request.Context(), scope, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToAdvanceResponses(page.Items), page.Total, page.Page, page.PageSize)
}

// ListSettlements godoc
// @Summary      List the settlement history of an advance
// @Tags         settlements
// @Produce      json
// @Param        id path string true "Advance ID"
// @Success      200 {object} dto.Response{data=[]dto.SettlementResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /custody/advances/{id}/settlements [get]
func (h *CustodyHandler) ListSettlements(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	settlements, err := h.services.Ledger.ListSettlements(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSettlementResponses(settlements))
}

// CheckConservation godoc
// @Summary      Check that an advance balances against its settlements
// @Tags         advances
// @Produce      json
// @Param        id path string true "Advance ID"
// @Success      200 {object} dto.Response{data=dto.ConservationResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /custody/advances/{id}/conservation [get]
func (h *CustodyHandler) CheckConservation(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}

	report, err := h.services.Ledger.CheckConservation(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToConservationResponse(report))
}

// SettleAsExpense godoc
// @Summary      Settle part of an advance as a vendor expense
// @Description  Resolves or creates the vendor, records the purchase order and reduces the remaining balance
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        id path string true "Advance ID"
// @Param        request body dto.SettleExpenseRequest true "Expense settlement"
// @Success      201 {object} dto.Response{data=dto.SettlementResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /custody/advances/{id}/settlements/expense [post]
func (h *CustodyHandler) SettleAsExpense(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req dto.SettleExpenseRequest
	if !h.bindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand(id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	settlement, err := h.services.Settlements.SettleAsExpense(c.Request.Context(), scope, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToSettlementResponse(settlement))
}

// SettleAsReturn godoc
// @Summary      Return unspent cash to a treasury account
// @Tags         settlements
// @Accept       json
// @Produce      json
// @Param        id path string true "Advance ID"
// @Param        request body dto.SettleReturnRequest true "Return settlement"
// @Success      201 {object} dto.Response{data=dto.SettlementResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /custody/advances/{id}/settlements/return [post]
func (h *CustodyHandler) SettleAsReturn(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req dto.SettleReturnRequest
	if !h.bindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand(id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	settlement, err := h.services.Settlements.SettleAsReturn(c.Request.Context(), scope, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToSettlementResponse(settlement))
}

// TransferAdvance godoc
// @Summary      Move the remaining balance to another cost center
// @Description  Closes the advance as TRANSFERRED and opens an approved successor carrying the balance
// @Tags         advances
// @Accept       json
// @Produce      json
// @Param        id path string true "Advance ID"
// @Param        request body dto.TransferRequest true "Target cost center"
// @Success      201 {object} dto.Response{data=dto.TransferResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /custody/advances/{id}/transfer [post]
func (h *CustodyHandler) TransferAdvance(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	// An empty body transfers to the general bucket
	var req dto.TransferRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand(id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.services.Transfers.TransferAdvance(c.Request.Context(), scope, cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToTransferResponse(result))
}
