package httpapi

import (
	"net/http"

	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/services/submission"

	"github.com/gin-gonic/gin"
)

type submitRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	ProofURL string `json:"proof_url" binding:"required"`
}

func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	sub, err := h.submissions.Create(c.Request.Context(), submission.CreateRequest{
		TaskID:   c.Param("taskId"),
		UserID:   req.UserID,
		ProofURL: req.ProofURL,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) GetSubmission(c *gin.Context) {
	sub, err := h.submissions.Get(c.Request.Context(), c.Param("submissionId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) ApproveSubmission(c *gin.Context) {
	sub, err := h.submissions.Approve(c.Request.Context(), c.Param("submissionId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) RejectSubmission(c *gin.Context) {
	sub, err := h.submissions.Reject(c.Request.Context(), c.Param("submissionId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
