package httpapi

import (
	"net/http"

	"smallbiznis-picks/pkg/db/pagination"
	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/points"
	"smallbiznis-picks/services/ledger"

	"github.com/gin-gonic/gin"
)

type adjustmentRequest struct {
	Direction   string `json:"direction" binding:"required,oneof=credit debit"`
	Amount      any    `json:"amount" binding:"required"`
	ReferenceID string `json:"reference_id" binding:"required"`
	Reason      string `json:"reason"`
}

func (h *Handler) GetBalance(c *gin.Context) {
	snap, err := h.ledger.GetBalance(c.Request.Context(), nil, c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) ListEntries(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	entries, info, err := h.ledger.ListEntries(c.Request.Context(), c.Param("userId"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": info})
}

func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.ledger.Reconcile(c.Request.Context(), c.Param("userId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Adjust applies an operator credit or debit keyed by the caller's
// reference id.
func (h *Handler) Adjust(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	amount, err := points.Parse(req.Amount)
	if err != nil {
		_ = c.Error(err)
		return
	}

	ref := ledger.Reference{
		Kind:        ledger.RefAdminAdjustment,
		ReferenceID: req.ReferenceID,
		Metadata:    map[string]any{"reason": req.Reason},
	}

	apply := h.ledger.Credit
	if req.Direction == "debit" {
		apply = h.ledger.Debit
	}

	snap, err := apply(c.Request.Context(), nil, c.Param("userId"), amount, ref)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
