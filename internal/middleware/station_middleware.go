// internal/middleware/station_middleware.go
package middleware

import (
	"errors"
	"net/http"

	domstation "glasstrace-service/internal/domain/station"
	xerrors "glasstrace-service/internal/pkg/errors"
	"glasstrace-service/internal/pkg/response"
	"glasstrace-service/internal/service/station"

	"github.com/gin-gonic/gin"
)

// ServiceSessionHeader carries the service-session id on station requests.
const ServiceSessionHeader = "X-Service-Session"

type StationMiddleware struct {
	stationService *station.StationService
}

func NewStationMiddleware(stationService *station.StationService) *StationMiddleware {
	return &StationMiddleware{
		stationService: stationService,
	}
}

// ServiceSession validates the X-Service-Session header and attaches the
// resolved session to the request context. Expired or deactivated sessions
// are rejected with 401 so agents know to re-authenticate rather than retry.
func (m *StationMiddleware) ServiceSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ServiceSessionHeader)
		if id == "" {
			response.Error(c, http.StatusUnauthorized, "missing service session", nil)
			return
		}

		sess, err := m.stationService.ValidateServiceSession(c.Request.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, xerrors.ErrSessionExpired), errors.Is(err, xerrors.ErrNotFound):
				response.Error(c, http.StatusUnauthorized, "service session expired or unknown", err)
			default:
				response.Error(c, http.StatusInternalServerError, "failed to validate service session", err)
			}
			return
		}

		c.Set("service_session", sess)
		c.Next()
	}
}

// GetServiceSession gets the validated service session from context
func GetServiceSession(c *gin.Context) (*domstation.ServiceSession, bool) {
	v, exists := c.Get("service_session")
	if !exists {
		return nil, false
	}

	sess, ok := v.(*domstation.ServiceSession)
	return sess, ok
}
