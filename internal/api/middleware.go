package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/agoramarket/agora/internal/fault"
	"github.com/agoramarket/agora/internal/model"
)

const agentContextKey = "agent"

// requireAgent resolves the Bearer API key to an agent and stashes it in the
// request context.
func (s *Server) requireAgent(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"success": false,
				"error":   "authentication required, use a Bearer API key",
			})
		}

		apiKey := strings.TrimPrefix(header, "Bearer ")
		agent, err := s.store.AgentByAPIKey(c.Request().Context(), apiKey)
		if err != nil {
			if fault.KindOf(err) == fault.NotFound {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"error":   "invalid API key",
				})
			}
			return jsonError(c, err)
		}

		c.Set(agentContextKey, agent)
		return next(c)
	}
}

func currentAgent(c echo.Context) *model.Agent {
	agent, _ := c.Get(agentContextKey).(*model.Agent)
	return agent
}
