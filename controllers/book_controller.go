package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rsd-darshan/merokitab/config"
	"github.com/rsd-darshan/merokitab/middleware"
	"github.com/rsd-darshan/merokitab/models"
)

// CreateBookRequest represents the request body for creating a listing
type CreateBookRequest struct {
	Title       string `json:"title" binding:"required"`
	Author      string `json:"author" binding:"required"`
	Condition   string `json:"condition" binding:"required,oneof=NEW LIKE_NEW GOOD FAIR"`
	Description string `json:"description" binding:"required"`
	SellerPrice int    `json:"seller_price" binding:"required,gt=0"`
	ImageURL    string `json:"image_url" binding:"omitempty"`
}

// ListBooks handles GET /api/v1/books - lists listings with optional filters
func ListBooks(c *gin.Context) {
	db := config.GetDB()

	status := c.DefaultQuery("status", models.BookStatusAvailable)
	search := c.Query("search")
	sellerID := c.Query("seller_id")

	query := db.Where("status = ?", status)
	if sellerID != "" {
		query = query.Where("seller_id = ?", sellerID)
	}
	if search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", pattern, pattern)
	}

	var books []models.Book
	if err := query.Preload("Seller").Order("created_at DESC").Find(&books).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch books",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    books,
	})
}

// GetBook handles GET /api/v1/books/:id - fetches a single listing
func GetBook(c *gin.Context) {
	db := config.GetDB()

	var book models.Book
	if err := db.Preload("Seller").First(&book, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "BOOK_NOT_FOUND",
				"message": "Book not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    book,
	})
}

// CreateBook handles POST /api/v1/books - creates a listing for the caller
func CreateBook(c *gin.Context) {
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

	var req CreateBookRequest
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

	// Platform price is derived once here and never recomputed
	book := models.Book{
		Title:         req.Title,
		Author:        req.Author,
		Condition:     req.Condition,
		Description:   req.Description,
		SellerPrice:   req.SellerPrice,
		PlatformPrice: models.ComputePlatformPrice(req.SellerPrice),
		ImageURL:      req.ImageURL,
		Status:        models.BookStatusAvailable,
		SellerID:      userID,
	}

	db := config.GetDB()
	if err := db.Create(&book).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create book",
			},
		})
		return
	}

	if err := db.Preload("Seller").First(&book, "id = ?", book.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load book details",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    book,
	})
}

// DeleteBook handles DELETE /api/v1/books/:id - removes an unsold listing
func DeleteBook(c *gin.Context) {
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

	var book models.Book
	if err := db.First(&book, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "BOOK_NOT_FOUND",
				"message": "Book not found",
			},
		})
		return
	}

	if book.SellerID != userID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have permission to delete this book",
			},
		})
		return
	}

	if book.Status == models.BookStatusSold {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_STATE",
				"message": "Cannot delete a sold book",
			},
		})
		return
	}

	if err := db.Delete(&book).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to delete book",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
