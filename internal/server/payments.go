package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	intentdomain "github.com/maqraa/wallet/internal/intent/domain"
	"github.com/maqraa/wallet/internal/money"
)

type createPaymentRequest struct {
	Amount          any    `json:"amount"`
	PaymentMethodID string `json:"payment_method_id"`
}

type pluginHashRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) HandleCreatePayment(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil || amount <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be a positive number"))
		return
	}

	resp, err := s.intentSvc.Create(c.Request.Context(), intentdomain.CreateRequest{
		UserID:          userID,
		Amount:          amount,
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandlePaymentStatus(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	intentID, err := snowflake.ParseString(strings.TrimSpace(c.Param("intentId")))
	if err != nil || intentID == 0 {
		AbortWithError(c, newValidationError("intent_id", "invalid_intent_id", "invalid intent id"))
		return
	}

	resp, err := s.intentSvc.Status(c.Request.Context(), userID, intentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandlePaymentCheck(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.intentSvc.CheckByInvoiceKey(c.Request.Context(), userID, c.Param("invoiceKey"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) HandlePluginHash(c *gin.Context) {
	var req pluginHashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	domain := strings.TrimSpace(req.Domain)
	if domain == "" {
		AbortWithError(c, newValidationError("domain", "invalid_domain", "domain is required"))
		return
	}

	hash, err := s.gateway.HashKey(domain)
	if err != nil {
		AbortWithError(c, intentdomain.ErrGatewayUnusable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hashKey": hash})
}
