package orders

import (
	"errors"
	"strconv"

	"dexflow/internal/ledger"
	"dexflow/internal/types"
	"dexflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
	ledger  *ledger.Service
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service, ledgerService *ledger.Service) *GinHandlers {
	return &GinHandlers{
		service: service,
		ledger:  ledgerService,
	}
}

func userID(c *gin.Context) string {
	return c.GetString("userID")
}

func handleOrderError(c *gin.Context, err error) {
	var denied *DeniedError
	switch {
	case errors.Is(err, ErrValidation):
		response.ValidationFailed(c, err.Error())
	case errors.As(err, &denied):
		response.Forbidden(c, denied.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "Order not found")
	case errors.Is(err, ErrConflict):
		response.Conflict(c, "Order is no longer cancellable")
	default:
		response.InternalError(c, "An unexpected error occurred")
	}
}

// CreateOrderHandler handles POST requests to place new orders
// Requires a valid JWT token; request body contains the order details
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := userID(c)
		if uid == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateOrder(uid, c.ClientIP(), &req)
		if err != nil {
			handleOrderError(c, err)
			return
		}

		response.Success(c, ToResponse(order))
	}
}

// GetOrderHandler handles GET requests for a single order
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrder(c.Param("order_id"), userID(c))
		if err != nil {
			handleOrderError(c, err)
			return
		}
		response.Success(c, ToResponse(order))
	}
}

// ListOrdersHandler handles GET requests for the user's orders
// Query parameters: status, limit, offset
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		orders, err := h.service.ListOrders(userID(c), c.Query("status"), limit, offset)
		if err != nil {
			handleOrderError(c, err)
			return
		}

		out := make([]*types.OrderResponse, len(orders))
		for i := range orders {
			out[i] = ToResponse(&orders[i])
		}
		response.Success(c, out)
	}
}

// CancelOrderHandler handles DELETE requests cancelling a pending order
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.CancelOrder(c.Param("order_id"), userID(c))
		if err != nil {
			handleOrderError(c, err)
			return
		}
		response.Success(c, ToResponse(order))
	}
}

// ListOrderTransactionsHandler handles GET requests for an order's
// submission attempts
// URL parameter: order_id
func (h *GinHandlers) ListOrderTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Ownership check before exposing the ledger rows.
		order, err := h.service.GetOrder(c.Param("order_id"), userID(c))
		if err != nil {
			handleOrderError(c, err)
			return
		}

		txs, err := h.ledger.OrderTransactions(order.OrderID)
		if err != nil {
			response.InternalError(c, "An unexpected error occurred")
			return
		}

		out := make([]types.TransactionResponse, len(txs))
		for i, tx := range txs {
			out[i] = types.TransactionResponse{
				TransactionID:   tx.TransactionID,
				OrderID:         tx.OrderID,
				Network:         tx.Network,
				TransactionHash: tx.TransactionHash,
				Status:          tx.Status,
				GasUsed:         tx.GasUsed,
				GasPrice:        tx.GasPrice,
				CreatedAt:       tx.CreatedAt,
				CompletedAt:     tx.CompletedAt,
				Error:           tx.Error,
			}
		}
		response.Success(c, out)
	}
}
