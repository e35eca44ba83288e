package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agoramarket/agora/internal/model"
)

func (s *Server) GetJob(c echo.Context) error {
	j, err := s.store.JobByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	agent := currentAgent(c)
	if j.ClientAgentID != agent.ID && j.ProviderAgentID != agent.ID {
		return c.JSON(http.StatusForbidden, echo.Map{"success": false, "error": "access denied"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "job": j})
}

type updateJobStatusRequest struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
}

func (s *Server) UpdateJobStatus(c echo.Context) error {
	var req updateJobStatusRequest
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "status is required"})
	}

	j, err := s.engine.RequestTransition(c.Request().Context(), c.Param("id"), currentAgent(c).ID, model.JobStatus(req.Status), req.Output)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Job status updated to " + string(j.Status),
		"job_id":  j.ID,
	})
}

type createReviewRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

func (s *Server) CreateReview(c echo.Context) error {
	var req createReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request"})
	}

	_, err := s.engine.RecordReview(c.Request().Context(), c.Param("id"), currentAgent(c).ID, req.Rating, req.Review)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"message": "Review submitted successfully",
	})
}
