package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agoramarket/agora/internal/model"
	"github.com/agoramarket/agora/internal/store"
	"github.com/agoramarket/agora/internal/x402"
)

type createServiceRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	PricePerUnit  string          `json:"price_per_unit"`
	UnitType      string          `json:"unit_type"`
	EstimatedTime string          `json:"estimated_time"`
	APISchema     json.RawMessage `json:"api_schema"`
}

func (s *Server) CreateService(c echo.Context) error {
	var req createServiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request"})
	}
	for field, value := range map[string]string{
		"name":           req.Name,
		"description":    req.Description,
		"category":       req.Category,
		"price_per_unit": req.PricePerUnit,
		"unit_type":      req.UnitType,
		"estimated_time": req.EstimatedTime,
	} {
		if value == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": field + " is required"})
		}
	}

	service, err := s.store.CreateService(c.Request().Context(), &model.Service{
		AgentID:       currentAgent(c).ID,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		PricePerUnit:  req.PricePerUnit,
		UnitType:      req.UnitType,
		EstimatedTime: req.EstimatedTime,
		APISchema:     req.APISchema,
		IsActive:      true,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "service": service})
}

func (s *Server) GetService(c echo.Context) error {
	service, err := s.store.ServiceByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "service": service})
}

func (s *Server) SearchServices(c echo.Context) error {
	filter := store.SearchFilter{
		Category: c.QueryParam("category"),
		MaxPrice: c.QueryParam("maxPrice"),
		AgentID:  c.QueryParam("agentId"),
	}
	if raw := c.QueryParam("minRating"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "minRating must be a number"})
		}
		filter.MinRating = v
	}

	services, err := s.store.SearchServices(c.Request().Context(), filter)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"count":    len(services),
		"services": services,
	})
}

type updateServiceRequest struct {
	IsActive *bool `json:"is_active"`
}

// UpdateService lets the listing owner activate or deactivate it.
func (s *Server) UpdateService(c echo.Context) error {
	var req updateServiceRequest
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "is_active is required"})
	}

	ok, err := s.store.SetServiceActive(c.Request().Context(), c.Param("id"), currentAgent(c).ID, *req.IsActive)
	if err != nil {
		return jsonError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "error": "service not found or not yours"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "service updated"})
}

type hireServiceRequest struct {
	Input json.RawMessage `json:"input"`
}

// HireService creates a job in pending_payment and answers 402 with payment
// instructions for the provider's deposit address.
func (s *Server) HireService(c echo.Context) error {
	var req hireServiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request"})
	}
	ctx := c.Request().Context()

	j, service, err := s.engine.CreateJob(ctx, c.Param("id"), currentAgent(c).ID, req.Input)
	if err != nil {
		return jsonError(c, err)
	}

	// The destination is the provider's deposit address as of right now; the
	// minted request keeps this snapshot for its whole lifetime.
	provider, err := s.store.AgentByID(ctx, service.AgentID)
	if err != nil {
		return jsonError(c, err)
	}

	request, err := s.registry.CreateRequest(ctx, j.ID, j.Price, provider.DepositAddress, x402.DefaultChain, x402.DefaultAsset, x402.DefaultTTL)
	if err != nil {
		return jsonError(c, err)
	}
	if err := s.store.SetJobRequestID(ctx, j.ID, request.RequestID); err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusPaymentRequired, x402.PaymentRequired(request))
}

type payServiceRequest struct {
	RequestID string `json:"requestId"`
	TxHash    string `json:"txHash"`
}

// PayService redeems a payment request with a client-submitted transaction
// hash.
func (s *Server) PayService(c echo.Context) error {
	var req payServiceRequest
	if err := c.Bind(&req); err != nil || req.RequestID == "" || req.TxHash == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "requestId and txHash are required"})
	}

	j, err := s.registry.Redeem(c.Request().Context(), req.RequestID, req.TxHash)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Payment verified",
		"job_id":  j.ID,
		"status":  j.Status,
	})
}
