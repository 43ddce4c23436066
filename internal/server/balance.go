package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/maqraa/wallet/internal/ledger/domain"
	"github.com/maqraa/wallet/internal/money"
	"github.com/maqraa/wallet/pkg/db/pagination"
)

type purchaseRequest struct {
	Amount      any    `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) HandleBalance(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":           balance,
		"balance_formatted": money.Format(balance),
	})
}

func (s *Server) HandleTransactions(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	page := pagination.Pagination{
		PageToken: strings.TrimSpace(c.Query("page_token")),
	}
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a positive integer"))
			return
		}
		page.PageSize = size
	}

	items, pageInfo, err := s.ledgerSvc.Transactions(c.Request.Context(), userID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []*ledgerdomain.BalanceTransaction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": items,
		"page_info":    pageInfo,
	})
}

func (s *Server) HandlePurchase(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil || amount <= 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be a positive number"))
		return
	}

	record, err := s.ledgerSvc.Purchase(c.Request.Context(), userID, amount, req.Description)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.metrics.RecordLedgerEntry(string(ledgerdomain.KindPurchase))
	c.JSON(http.StatusOK, record)
}
