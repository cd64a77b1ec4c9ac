package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rsd-darshan/merokitab/config"
	"github.com/rsd-darshan/merokitab/middleware"
	"github.com/rsd-darshan/merokitab/models"
	"github.com/rsd-darshan/merokitab/services"
)

// setupTestRouter creates a test router with test mode enabled
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// setupTestDB creates an in-memory SQLite database with all models migrated
// and installs it as the active database
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.Order{},
		&models.ChatThread{},
		&models.ChatMessage{},
	); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	config.SetDB(db)
	return db
}

// setupTestConfig installs a test configuration and returns it
func setupTestConfig() *config.Config {
	cfg := &config.Config{
		JWTSecret:  "test-secret",
		GoEnv:      "test",
		AdminEmail: "admin@merokitab.com",
	}
	config.SetConfig(cfg)
	return cfg
}

// mockAuthMiddleware simulates RequireAuth by setting the caller's identity
// directly in the Gin context
func mockAuthMiddleware(userID string, isAdmin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("is_admin", isAdmin)
		c.Set("session_claims", &services.SessionClaims{
			UserID:  userID,
			IsAdmin: isAdmin,
		})
		c.Next()
	}
}

func createTestUser(t *testing.T, db *gorm.DB, name, email string) models.User {
	user := models.User{
		Name:         name,
		Email:        email,
		Phone:        "9800000000",
		PasswordHash: "not-a-real-hash",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func createTestBook(t *testing.T, db *gorm.DB, sellerID string, sellerPrice int) models.Book {
	book := models.Book{
		Title:         "Muna Madan",
		Author:        "Laxmi Prasad Devkota",
		Condition:     models.BookConditionGood,
		Description:   "Classic, lightly annotated",
		SellerPrice:   sellerPrice,
		PlatformPrice: models.ComputePlatformPrice(sellerPrice),
		Status:        models.BookStatusAvailable,
		SellerID:      sellerID,
	}
	if err := db.Create(&book).Error; err != nil {
		t.Fatalf("Failed to create test book: %v", err)
	}
	return book
}

// createTestOrder creates an order in the given status and marks its book sold
func createTestOrder(t *testing.T, db *gorm.DB, book models.Book, buyerID, status string) models.Order {
	order := models.Order{
		BookID:        book.ID,
		BuyerID:       buyerID,
		SellerID:      book.SellerID,
		SellerPrice:   book.SellerPrice,
		PlatformPrice: book.PlatformPrice,
		Status:        status,
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("Failed to create test order: %v", err)
	}
	if err := db.Model(&models.Book{}).Where("id = ?", book.ID).
		Update("status", models.BookStatusSold).Error; err != nil {
		t.Fatalf("Failed to mark test book sold: %v", err)
	}
	return order
}

func createTestThread(t *testing.T, db *gorm.DB, order models.Order) models.ChatThread {
	thread := models.ChatThread{
		OrderID:  order.ID,
		BuyerID:  order.BuyerID,
		SellerID: order.SellerID,
	}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("Failed to create test thread: %v", err)
	}
	return thread
}

func performJSONRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response body %q: %v", w.Body.String(), err)
	}
	return response
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, code string) {
	response := parseResponse(t, w)
	assert.False(t, response["success"].(bool))
	errorData := response["error"].(map[string]interface{})
	assert.Equal(t, code, errorData["code"])
}

func TestSignup(t *testing.T) {
	db := setupTestDB(t)
	setupTestConfig()

	router := setupTestRouter()
	router.POST("/auth/signup", Signup)

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedError  string
		checkResponse  func(t *testing.T, response map[string]interface{})
	}{
		{
			name: "Successfully create account",
			requestBody: map[string]interface{}{
				"name":     "Ram Thapa",
				"email":    "ram@example.com",
				"phone":    "9811111111",
				"password": "password123",
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, response map[string]interface{}) {
				assert.True(t, response["success"].(bool))
				data := response["data"].(map[string]interface{})
				assert.Equal(t, "ram@example.com", data["email"])
				assert.NotEmpty(t, data["id"])
				// Password hash never leaves the server
				assert.NotContains(t, data, "password_hash")
			},
		},
		{
			name: "Fail with missing email",
			requestBody: map[string]interface{}{
				"name":     "Ram Thapa",
				"phone":    "9811111111",
				"password": "password123",
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name: "Fail with short password",
			requestBody: map[string]interface{}{
				"name":     "Ram Thapa",
				"email":    "ram2@example.com",
				"phone":    "9811111111",
				"password": "short",
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performJSONRequest(router, http.MethodPost, "/auth/signup", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assertErrorCode(t, w, tt.expectedError)
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, parseResponse(t, w))
			}
		})
	}

	t.Run("Fail with duplicate email", func(t *testing.T) {
		w := performJSONRequest(router, http.MethodPost, "/auth/signup", map[string]interface{}{
			"name":     "Other Ram",
			"email":    "ram@example.com",
			"phone":    "9822222222",
			"password": "password456",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		assertErrorCode(t, w, "EMAIL_EXISTS")
	})

	t.Run("Signup sets session cookie", func(t *testing.T) {
		w := performJSONRequest(router, http.MethodPost, "/auth/signup", map[string]interface{}{
			"name":     "Hari Karki",
			"email":    "hari@example.com",
			"phone":    "9833333333",
			"password": "password123",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		cookies := w.Result().Cookies()
		found := false
		for _, cookie := range cookies {
			if cookie.Name == middleware.SessionCookieName && cookie.Value != "" {
				found = true
			}
		}
		assert.True(t, found, "Signup should start a session")
	})

	t.Run("Admin email gets admin flag", func(t *testing.T) {
		w := performJSONRequest(router, http.MethodPost, "/auth/signup", map[string]interface{}{
			"name":     "Admin User",
			"email":    "admin@merokitab.com",
			"phone":    "9844444444",
			"password": "adminpass",
		})

		assert.Equal(t, http.StatusCreated, w.Code)

		var user models.User
		assert.NoError(t, db.First(&user, "email = ?", "admin@merokitab.com").Error)
		assert.True(t, user.IsAdmin)
	})
}

func TestLogin(t *testing.T) {
	db := setupTestDB(t)
	setupTestConfig()

	hash, err := services.HashPassword("password123")
	assert.NoError(t, err)
	user := models.User{
		Name:         "Gita Rai",
		Email:        "gita@example.com",
		Phone:        "9855555555",
		PasswordHash: hash,
	}
	assert.NoError(t, db.Create(&user).Error)

	router := setupTestRouter()
	router.POST("/auth/login", Login)

	t.Run("Successful login", func(t *testing.T) {
		w := performJSONRequest(router, http.MethodPost, "/auth/login", map[string]interface{}{
			"email":    "gita@example.com",
			"password": "password123",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		response := parseResponse(t, w)
		assert.True(t, response["success"].(bool))
		data := response["data"].(map[string]interface{})
		assert.Equal(t, user.ID, data["id"])
	})

	t.Run("Wrong password", func(t *testing.T) {
		w := performJSONRequest(router, http.MethodPost, "/auth/login", map[string]interface{}{
			"email":    "gita@example.com",
			"password": "wrong-password",
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assertErrorCode(t, w, "INVALID_CREDENTIALS")
	})

	t.Run("Unknown email gets the same error", func(t *testing.T) {
		w := performJSONRequest(router, http.MethodPost, "/auth/login", map[string]interface{}{
			"email":    "nobody@example.com",
			"password": "password123",
		})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assertErrorCode(t, w, "INVALID_CREDENTIALS")
	})

	t.Run("Invalid body", func(t *testing.T) {
		w := performJSONRequest(router, http.MethodPost, "/auth/login", map[string]interface{}{
			"email": "not-an-email",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorCode(t, w, "VALIDATION_ERROR")
	})
}

func TestLogout(t *testing.T) {
	setupTestConfig()

	router := setupTestRouter()
	router.POST("/auth/logout", Logout)

	w := performJSONRequest(router, http.MethodPost, "/auth/logout", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	cleared := false
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.SessionCookieName && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "Logout should expire the session cookie")
}

func TestMe(t *testing.T) {
	db := setupTestDB(t)
	setupTestConfig()

	user := createTestUser(t, db, "Sita Sharma", "sita@example.com")

	t.Run("Returns the authenticated profile", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/auth/me", mockAuthMiddleware(user.ID, false), Me)

		req, _ := http.NewRequest(http.MethodGet, "/auth/me", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		response := parseResponse(t, w)
		data := response["data"].(map[string]interface{})
		assert.Equal(t, user.ID, data["id"])
		assert.Equal(t, "sita@example.com", data["email"])
		assert.Equal(t, false, data["is_admin"])
	})

	t.Run("Unknown user id", func(t *testing.T) {
		router := setupTestRouter()
		router.GET("/auth/me", mockAuthMiddleware("no-such-user", false), Me)

		req, _ := http.NewRequest(http.MethodGet, "/auth/me", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assertErrorCode(t, w, "USER_NOT_FOUND")
	})
}
