package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/nextsteps/internal/dtos"
	"github.com/justsurfingit/nextsteps/internal/models"
)

// JobStore is the job CRUD the handler needs.
type JobStore interface {
	ListJobs(ctx context.Context, userID uint) ([]models.JobApplication, error)
	CreateJob(ctx context.Context, userID uint, req *dtos.JobCreateRequest) (*models.JobApplication, error)
	UpdateJob(ctx context.Context, userID, jobID uint, req *dtos.JobUpdateRequest) (*models.JobApplication, error)
	DeleteJob(ctx context.Context, userID, jobID uint) error
}

type JobHandler struct {
	JobService JobStore
}

// NewJobHandler creates the handler with dependencies
func NewJobHandler(j JobStore) *JobHandler {
	return &JobHandler{JobService: j}
}

// ListJobs is the GET /jobs endpoint
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs, err := h.JobService.ListJobs(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// CreateJob is the POST /jobs endpoint
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dtos.JobCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	job, err := h.JobService.CreateJob(c.Request.Context(), currentUser(c).ID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// UpdateJob is the PUT /jobs/:id endpoint
func (h *JobHandler) UpdateJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	var req dtos.JobUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	job, err := h.JobService.UpdateJob(c.Request.Context(), currentUser(c).ID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// DeleteJob is the DELETE /jobs/:id endpoint
func (h *JobHandler) DeleteJob(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if err := h.JobService.DeleteJob(c.Request.Context(), currentUser(c).ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job deleted"})
}

func jobID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		abortWithDetail(c, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return uint(id), true
}
