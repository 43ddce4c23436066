package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/maqraa/wallet/internal/webhook/domain"
)

const webhookProvider = "fawaterak"

// HandleWebhook ingests a gateway delivery. statusHint covers the
// per-status routes whose payloads omit the status field. Redelivered and
// ignored events answer 200 so the gateway stops retrying.
func (s *Server) HandleWebhook(statusHint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}

		err = s.webhookSvc.Ingest(c.Request.Context(), webhookProvider, payload, c.Request.Header, statusHint)
		if err != nil {
			switch {
			case errors.Is(err, webhookdomain.ErrEventAlreadyProcessed):
				s.metrics.RecordWebhookEvent(webhookProvider, "duplicate")
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
				return
			case errors.Is(err, webhookdomain.ErrEventIgnored):
				s.metrics.RecordWebhookEvent(webhookProvider, "ignored")
				c.JSON(http.StatusOK, gin.H{"status": "ignored"})
				return
			}
			s.metrics.RecordWebhookEvent(webhookProvider, "rejected")
			AbortWithError(c, err)
			return
		}

		s.metrics.RecordWebhookEvent(webhookProvider, "accepted")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
