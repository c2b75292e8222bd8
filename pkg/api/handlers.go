package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/services"
	"github.com/jakechorley/live-schedule/pkg/export"
)

// POST /api/live-schedules/auto-generate
func (s *Server) autoGenerate(c *gin.Context) (*Response, *Error) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, validationError(err)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	summary, err := services.GenerateSchedule(
		c.Request.Context(),
		s.deps.Generator,
		s.deps.Locker,
		s.deps.Logger,
		services.GenerateRequest{AccountIDs: req.accountIDs(), StartDate: req.StartDate},
		s.deps.GenerationTimeout,
	)
	if err != nil {
		if summary != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			return nil, &Error{
				Status:  http.StatusServiceUnavailable,
				Code:    "generation_interrupted",
				Message: "schedule generation stopped before completion; finished accounts were saved",
				Details: summary,
			}
		}
		s.deps.Logger.Error("Schedule generation failed", zap.Error(err))
		return nil, errorFrom(err, "failed to generate schedules")
	}

	return &Response{
		Message: fmt.Sprintf("Generated %d schedule(s) for %d account(s)", summary.SlotsFilled, summary.AccountsProcessed),
		Data:    summary,
	}, nil
}

func (s *Server) listRequest(c *gin.Context) (services.ListRequest, *Error) {
	ids, err := parseIDs(c.QueryArray("accountId"))
	if err != nil {
		return services.ListRequest{}, &Error{Status: http.StatusBadRequest, Code: "invalid_request", Message: err.Error()}
	}
	return services.ListRequest{AccountIDs: ids, Date: c.Query("date")}, nil
}

// GET /api/live-schedules
func (s *Server) listSchedules(c *gin.Context) (*Response, *Error) {
	req, apiErr := s.listRequest(c)
	if apiErr != nil {
		return nil, apiErr
	}

	views, err := services.ListSchedules(c.Request.Context(), s.deps.DB, s.deps.Logger, req)
	if err != nil {
		s.deps.Logger.Error("Failed to list schedules", zap.Error(err))
		return nil, errorFrom(err, "failed to fetch live schedules")
	}

	return &Response{Data: views}, nil
}

// GET /api/live-schedules/download-excel
func (s *Server) downloadExcel(c *gin.Context) (*Response, *Error) {
	req, apiErr := s.listRequest(c)
	if apiErr != nil {
		return nil, apiErr
	}

	var buf bytes.Buffer
	result, err := services.ExportSchedules(c.Request.Context(), s.deps.DB, s.deps.Logger, req, s.deps.Now(), &buf)
	if err != nil {
		s.deps.Logger.Error("Failed to export schedules", zap.Error(err))
		return nil, errorFrom(err, "failed to export live schedules")
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
	return nil, nil
}

// PATCH /api/live-schedules/:batch_id/status
func (s *Server) updateBatchStatus(c *gin.Context) (*Response, *Error) {
	batchID, err := strconv.ParseInt(c.Param("batch_id"), 10, 64)
	if err != nil || batchID <= 0 {
		return nil, &Error{Status: http.StatusBadRequest, Code: "invalid_request", Message: "batch_id must be a positive integer"}
	}

	var req batchStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, validationError(err)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	updated, err := services.SetBatchStatus(c.Request.Context(), s.deps.DB, s.deps.Logger, batchID, *req.IsDraft)
	if err != nil {
		apiErr := errorFrom(err, "failed to update schedule status")
		if apiErr.Status == http.StatusInternalServerError {
			s.deps.Logger.Error("Failed to update batch status", zap.Error(err))
		}
		return nil, apiErr
	}

	return &Response{
		Message: "Schedule status updated",
		Data: gin.H{
			"batch_id": batchID,
			"is_draft": *req.IsDraft,
			"updated":  updated,
		},
	}, nil
}
