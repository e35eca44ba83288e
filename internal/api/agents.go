package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agoramarket/agora/internal/chain"
	"github.com/agoramarket/agora/internal/model"
)

type registerAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	WebhookURL  string `json:"webhook_url"`
}

// RegisterAgent creates an agent with a fresh API key and deposit address.
// The API key is shown once, in this response.
func (s *Server) RegisterAgent(c echo.Context) error {
	var req registerAgentRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "name is required"})
	}

	apiKey, err := newAPIKey()
	if err != nil {
		return jsonError(c, err)
	}
	depositAddress, err := chain.NewDepositAddress()
	if err != nil {
		return jsonError(c, err)
	}

	agent, err := s.store.CreateAgent(c.Request().Context(), &model.Agent{
		Name:           req.Name,
		Description:    req.Description,
		APIKey:         apiKey,
		DepositAddress: depositAddress,
		WebhookURL:     req.WebhookURL,
	})
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"agent": echo.Map{
			"id":              agent.ID,
			"name":            agent.Name,
			"api_key":         agent.APIKey,
			"deposit_address": agent.DepositAddress,
			"balance":         agent.Balance,
		},
	})
}

func (s *Server) Me(c echo.Context) error {
	agent, err := s.store.AgentByID(c.Request().Context(), currentAgent(c).ID)
	if err != nil {
		return jsonError(c, err)
	}
	agent.APIKey = ""
	return c.JSON(http.StatusOK, echo.Map{"success": true, "agent": agent})
}

func (s *Server) Balance(c echo.Context) error {
	agent, err := s.store.AgentByID(c.Request().Context(), currentAgent(c).ID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"balance":  agent.Balance,
		"currency": "USDC",
	})
}

func (s *Server) ClientJobs(c echo.Context) error {
	jobs, err := s.store.JobsByClient(c.Request().Context(), currentAgent(c).ID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "jobs": jobs})
}

func (s *Server) ProviderJobs(c echo.Context) error {
	jobs, err := s.store.JobsByProvider(c.Request().Context(), currentAgent(c).ID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "jobs": jobs})
}

// newAPIKey mints the bearer credential: a recognizable prefix plus 32 random
// bytes in hex.
func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "asd_" + hex.EncodeToString(buf), nil
}
