package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rsd-darshan/merokitab/config"
	"github.com/rsd-darshan/merokitab/middleware"
	"github.com/rsd-darshan/merokitab/models"
	"github.com/rsd-darshan/merokitab/services"
)

// SendMessageRequest represents the request body for sending a chat message
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ListThreads handles GET /api/v1/chat/threads - the caller's chat threads,
// most recently active first
func ListThreads(c *gin.Context) {
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

	var threads []models.ChatThread
	if err := db.
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Preload("Order").
		Preload("Order.Book").
		Preload("Buyer").
		Preload("Seller").
		Order("updated_at DESC").
		Find(&threads).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch chat threads",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    threads,
	})
}

// GetThreadForOrder handles GET /api/v1/chat/order/:orderId - resolves an
// order's thread id and status so a client can route to the chat view.
// Membership is required but the payment-status gate is not: a party may
// learn the thread exists before chat opens.
func GetThreadForOrder(c *gin.Context) {
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

	var thread models.ChatThread
	if err := db.Preload("Order").First(&thread, "order_id = ?", c.Param("orderId")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "THREAD_NOT_FOUND",
				"message": "Chat thread not found",
			},
		})
		return
	}

	if !thread.AccessibleBy(userID, middleware.IsAdmin(c)) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have permission to access this chat",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"thread_id":    thread.ID,
			"order_status": thread.Order.Status,
		},
	})
}

// ListMessages handles GET /api/v1/chat/threads/:threadId/messages - the
// thread's messages in creation order, capped at the 200 most recent
func ListMessages(c *gin.Context) {
	thread, ok := requireThreadAccess(c)
	if !ok {
		return
	}

	db := config.GetDB()

	// Newest 200, returned oldest first
	var messages []models.ChatMessage
	if err := db.
		Where("thread_id = ?", thread.ID).
		Preload("Sender").
		Order("created_at DESC").
		Limit(200).
		Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch messages",
			},
		})
		return
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"thread":   thread,
			"messages": messages,
		},
	})
}

// SendMessage handles POST /api/v1/chat/threads/:threadId/messages -
// persists a message, bumps the thread, and notifies live viewers
func SendMessage(c *gin.Context) {
	thread, ok := requireThreadAccess(c)
	if !ok {
		return
	}

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

	var req SendMessageRequest
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

	content := strings.TrimSpace(req.Content)
	if content == "" || utf8.RuneCountInString(content) > models.MaxChatMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": fmt.Sprintf("Message must be between 1 and %d characters", models.MaxChatMessageLength),
			},
		})
		return
	}

	db := config.GetDB()

	message := models.ChatMessage{
		ThreadID: thread.ID,
		SenderID: userID,
		Content:  content,
	}

	if err := db.Create(&message).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create message",
			},
		})
		return
	}

	// Bump the thread so thread lists sort by recent activity
	if err := db.Model(&models.ChatThread{}).
		Where("id = ?", thread.ID).
		Update("updated_at", time.Now()).Error; err != nil {
		log.Printf("Failed to bump chat thread %s: %v", thread.ID, err)
	}

	if err := db.Preload("Sender").First(&message, "id = ?", message.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load message details",
			},
		})
		return
	}

	if broker := services.GetChatBroker(); broker != nil {
		broker.Publish(thread.ID, services.ChatEvent{
			Type:    "message",
			Message: message,
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    message,
	})
}

// StreamThread handles GET /api/v1/chat/threads/:threadId/stream - a
// long-lived push channel of newline-delimited JSON frames. A "ready"
// frame is emitted immediately, then one "message" frame per broker event
// until the client disconnects.
func StreamThread(c *gin.Context) {
	thread, ok := requireThreadAccess(c)
	if !ok {
		return
	}

	broker := services.GetChatBroker()
	if broker == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Live delivery is not available",
			},
		})
		return
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache, no-transform")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	writeFrame := func(event services.ChatEvent) bool {
		payload, err := json.Marshal(event)
		if err != nil {
			return false
		}
		if _, err := c.Writer.Write(append(payload, '\n')); err != nil {
			return false
		}
		c.Writer.Flush()
		return true
	}

	if !writeFrame(services.ChatEvent{Type: "ready"}) {
		return
	}

	// The callback runs on the publisher's goroutine; a full buffer drops
	// the event rather than blocking message sends. Disconnected clients
	// resync from the persisted log.
	events := make(chan services.ChatEvent, 16)
	unsubscribe := broker.Subscribe(thread.ID, func(event services.ChatEvent) {
		select {
		case events <- event:
		default:
		}
	})
	defer unsubscribe()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if !writeFrame(event) {
				return
			}
		}
	}
}

// FixThreads handles POST /api/v1/admin/fix-threads - creates missing chat
// threads for orders that should already have one
func FixThreads(c *gin.Context) {
	db := config.GetDB()

	var orders []models.Order
	if err := db.
		Where("status IN ?", models.ChatEligibleStatuses).
		Where("id NOT IN (?)", db.Model(&models.ChatThread{}).Select("order_id")).
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

	created := 0
	for i := range orders {
		_, wasCreated, err := ensureChatThread(db, &orders[i])
		if err != nil {
			log.Printf("Failed to create chat thread for order %s: %v", orders[i].ID, err)
			continue
		}
		if wasCreated {
			created++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"created": created,
		},
	})
}

// requireThreadAccess loads the thread and enforces the two chat checks in
// order: membership (buyer, seller, or admin), then the payment-status
// gate. The two failures return distinct codes so a client can render "no
// permission" and "wait for payment" differently. The status gate applies
// to admins too.
func requireThreadAccess(c *gin.Context) (*models.ChatThread, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return nil, false
	}

	db := config.GetDB()

	var thread models.ChatThread
	if err := db.
		Preload("Order").
		Preload("Order.Book").
		Preload("Buyer").
		Preload("Seller").
		First(&thread, "id = ?", c.Param("threadId")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "THREAD_NOT_FOUND",
				"message": "Chat thread not found",
			},
		})
		return nil, false
	}

	if !thread.AccessibleBy(userID, middleware.IsAdmin(c)) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have permission to access this chat",
			},
		})
		return nil, false
	}

	if !models.OrderStatusAllowsChat(thread.Order.Status) {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CHAT_NOT_AVAILABLE",
				"message": "Chat is available after payment is confirmed",
			},
		})
		return nil, false
	}

	return &thread, true
}

// ensureChatThread creates the order's chat thread if absent and returns
// the thread either way. Concurrent creators race on the order_id unique
// constraint; the loser fetches and returns the existing row rather than
// surfacing an error. The insert uses ON CONFLICT DO NOTHING so a lost
// race never raises a constraint error, which on PostgreSQL would abort
// an enclosing transaction and make recovery impossible.
func ensureChatThread(db *gorm.DB, order *models.Order) (*models.ChatThread, bool, error) {
	var existing models.ChatThread
	err := db.Where("order_id = ?", order.ID).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	thread := models.ChatThread{
		OrderID:  order.ID,
		BuyerID:  order.BuyerID,
		SellerID: order.SellerID,
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(&thread)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Another writer created the thread between our check and insert
		if err := db.Where("order_id = ?", order.ID).First(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}

	return &thread, true, nil
}
