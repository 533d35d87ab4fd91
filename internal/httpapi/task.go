package httpapi

import (
	"net/http"

	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/services/task"

	"github.com/gin-gonic/gin"
)

type updateTaskRequest struct {
	Status task.Status `json:"status" binding:"required"`
}

func (h *Handler) CreateVenue(c *gin.Context) {
	var req task.CreateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	venue, err := h.tasks.CreateVenue(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, venue)
}

func (h *Handler) GetVenue(c *gin.Context) {
	venue, err := h.tasks.GetVenue(c.Request.Context(), c.Param("venueId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, venue)
}

func (h *Handler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.ListByVenue(c.Request.Context(), c.Param("venueId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tasks})
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req task.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	req.VenueID = c.Param("venueId")

	t, err := h.tasks.CreateTask(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) UpdateTaskStatus(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	t, err := h.tasks.UpdateStatus(c.Request.Context(), c.Param("taskId"), req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	t, err := h.tasks.UpdateStatus(c.Request.Context(), c.Param("taskId"), task.StatusDeleted)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}
