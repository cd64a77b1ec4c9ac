package controllers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/rsd-darshan/merokitab/config"
	"github.com/rsd-darshan/merokitab/middleware"
	"github.com/rsd-darshan/merokitab/models"
)

// Order patch actions
const (
	OrderActionMarkPaid       = "mark_paid"
	OrderActionConfirmPayment = "confirm_payment"
	OrderActionMarkPayoutSent = "mark_payout_sent"
)

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	BookID string `json:"book_id" binding:"required"`
}

// PatchOrderRequest represents the request body for an order transition
type PatchOrderRequest struct {
	Action string `json:"action" binding:"required"`
}

var (
	errBookSold     = errors.New("book already sold")
	errInvalidState = errors.New("invalid order status")
)

// CreateOrder handles POST /api/v1/orders - buys a book, freezing its prices
func CreateOrder(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	db := config.GetDB()

	var book models.Book
	if err := db.First(&book, "id = ?", req.BookID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "BOOK_NOT_FOUND",
				"message": "Book not found",
			},
		})
		return
	}

	if book.SellerID == userID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CANNOT_BUY_OWN_BOOK",
				"message": "You cannot buy your own book",
			},
		})
		return
	}

	if book.Status != models.BookStatusAvailable {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "BOOK_ALREADY_SOLD",
				"message": "Book already sold",
			},
		})
		return
	}

	// Prices are copied from the book so later disputes are frozen at
	// purchase time. The guarded book update makes the AVAILABLE -> SOLD
	// flip atomic: a second concurrent buyer rolls back here.
	order := models.Order{
		BookID:        book.ID,
		BuyerID:       userID,
		SellerID:      book.SellerID,
		SellerPrice:   book.SellerPrice,
		PlatformPrice: book.PlatformPrice,
		Status:        models.OrderStatusPendingPayment,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		res := tx.Model(&models.Book{}).
			Where("id = ? AND status = ?", book.ID, models.BookStatusAvailable).
			Update("status", models.BookStatusSold)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errBookSold
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errBookSold) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "BOOK_ALREADY_SOLD",
					"message": "Book already sold",
				},
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create order",
			},
		})
		return
	}

	if err := loadOrderDetails(db, &order, order.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load order details",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    order,
	})
}

// ListOrders handles GET /api/v1/orders - lists the caller's purchases or sales
func ListOrders(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	db := config.GetDB()

	listType := c.DefaultQuery("type", "buy")
	query := db.Where("buyer_id = ?", userID)
	if listType == "sell" {
		query = db.Where("seller_id = ?", userID)
	}

	var orders []models.Order
	if err := query.
		Preload("Book").
		Preload("Buyer").
		Preload("Seller").
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch orders",
			},
		})
		return
	}

	for i := range orders {
		attachChatThreadID(db, &orders[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
	})
}

// GetOrder handles GET /api/v1/orders/:id - fetches one order for a party or admin
func GetOrder(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	db := config.GetDB()

	var order models.Order
	if err := loadOrderDetails(db, &order, c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORDER_NOT_FOUND",
				"message": "Order not found",
			},
		})
		return
	}

	if !order.IsParty(userID) && !middleware.IsAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have permission to access this order",
			},
		})
		return
	}

	attachChatThreadID(db, &order)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// PatchOrder handles PATCH /api/v1/orders/:id - applies a lifecycle transition.
// Each transition checks the actor first, then performs a guarded update so
// a failed precondition leaves the order untouched.
func PatchOrder(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	var req PatchOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	db := config.GetDB()

	var order models.Order
	if err := db.First(&order, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORDER_NOT_FOUND",
				"message": "Order not found",
			},
		})
		return
	}

	isAdmin := middleware.IsAdmin(c)

	switch req.Action {
	case OrderActionMarkPaid:
		// Buyer self-attestation confirms payment directly
		if order.BuyerID != userID {
			respondForbiddenOrderAction(c)
			return
		}
		err = applyOrderTransition(db, &order, models.OrderStatusPendingPayment, func(now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"status":               models.OrderStatusPaymentConfirmed,
				"payment_marked_at":    now,
				"payment_confirmed_at": now,
			}
		}, true)

	case OrderActionConfirmPayment:
		// Admin verification path for orders awaiting manual review
		if !isAdmin {
			respondForbiddenOrderAction(c)
			return
		}
		err = applyOrderTransition(db, &order, models.OrderStatusPaymentVerificationPending, func(now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"status":               models.OrderStatusPaymentConfirmed,
				"payment_confirmed_at": now,
			}
		}, true)

	case OrderActionMarkPayoutSent:
		if !isAdmin {
			respondForbiddenOrderAction(c)
			return
		}
		err = applyOrderTransition(db, &order, models.OrderStatusPaymentConfirmed, func(now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"status":         models.OrderStatusCompleted,
				"payout_sent_at": now,
			}
		}, false)

	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ACTION",
				"message": "Unknown order action",
			},
		})
		return
	}

	if err != nil {
		if errors.Is(err, errInvalidState) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_STATE",
					"message": "Action not allowed for the order's current status",
				},
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update order",
			},
		})
		return
	}

	if err := loadOrderDetails(db, &order, order.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load order details",
			},
		})
		return
	}
	attachChatThreadID(db, &order)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// ListAdminOrders handles GET /api/v1/admin/orders - orders awaiting
// payment verification or payout
func ListAdminOrders(c *gin.Context) {
	db := config.GetDB()

	var orders []models.Order
	if err := db.
		Where("status IN ?", []string{
			models.OrderStatusPaymentVerificationPending,
			models.OrderStatusPaymentConfirmed,
		}).
		Preload("Book").
		Preload("Buyer").
		Preload("Seller").
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch orders",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
	})
}

// applyOrderTransition performs a forward status transition as one atomic
// unit: the UPDATE only matches when the order still sits in fromStatus,
// so a lost race or a repeated action changes nothing and reports
// errInvalidState. ensureThread additionally creates the order's chat
// thread inside the same transaction.
func applyOrderTransition(db *gorm.DB, order *models.Order, fromStatus string, updates func(now time.Time) map[string]interface{}, ensureThread bool) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if ensureThread {
			if _, _, err := ensureChatThread(tx, order); err != nil {
				return err
			}
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, fromStatus).
			Updates(updates(time.Now()))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errInvalidState
		}
		return nil
	})
}

func loadOrderDetails(db *gorm.DB, order *models.Order, orderID string) error {
	return db.
		Preload("Book").
		Preload("Buyer").
		Preload("Seller").
		First(order, "id = ?", orderID).Error
}

// attachChatThreadID fills the order's computed chat_thread_id, creating
// the thread first when the order should have one but doesn't. The
// backfill is best effort: a failure is logged, never surfaced.
func attachChatThreadID(db *gorm.DB, order *models.Order) {
	var thread models.ChatThread
	err := db.Select("id").Where("order_id = ?", order.ID).First(&thread).Error
	if err == nil {
		order.ChatThreadID = thread.ID
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Failed to look up chat thread for order %s: %v", order.ID, err)
		return
	}

	if !statusIsChatEligible(order.Status) {
		return
	}

	backfilled, _, err := ensureChatThread(db, order)
	if err != nil {
		log.Printf("Failed to backfill chat thread for order %s: %v", order.ID, err)
		return
	}
	order.ChatThreadID = backfilled.ID
}

func statusIsChatEligible(status string) bool {
	for _, s := range models.ChatEligibleStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func respondForbiddenOrderAction(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "FORBIDDEN",
			"message": "You do not have permission to perform this action",
		},
	})
}
