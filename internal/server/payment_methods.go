package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
)

const paymentMethodsCacheKey = "fawaterak"

// HandlePaymentMethods lists the gateway's checkout options. The answer is
// cached briefly because the list changes rarely and the gateway call is
// the slowest part of rendering a checkout page.
func (s *Server) HandlePaymentMethods(c *gin.Context) {
	if methods, ok := s.methodsCache.Get(paymentMethodsCacheKey); ok {
		c.JSON(http.StatusOK, gin.H{"methods": methods})
		return
	}

	methods, err := s.gateway.ListPaymentMethods(c.Request.Context())
	if err != nil {
		AbortWithError(c, intentdomain.ErrGatewayUnusable)
		return
	}

	s.methodsCache.Set(paymentMethodsCacheKey, methods)
	c.JSON(http.StatusOK, gin.H{"methods": methods})
}
