package controllers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsd-darshan/merokitab/services"
)

func newMultipartRequest(t *testing.T, fieldName, filename string, content []byte) *http.Request {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(fieldName, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func setupUploadTest() (*gin.Engine, *services.MockS3Service) {
	gin.SetMode(gin.TestMode)
	mockS3 := services.NewMockS3Service()
	mockS3.SetAsMockForTesting()

	router := gin.New()
	router.POST("/uploads", mockAuthMiddleware("uploader-id", false), UploadImage)
	return router, mockS3
}

func TestUploadImage_Success(t *testing.T) {
	router, mockS3 := setupUploadTest()

	req := newMultipartRequest(t, "file", "cover.jpg", []byte("fake JPEG content"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := parseResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "covers/mock_cover.jpg", data["image_key"])
	assert.Contains(t, data["image_url"], "covers/mock_cover.jpg")

	files := mockS3.GetUploadedFiles()
	assert.Equal(t, []byte("fake JPEG content"), files["covers/mock_cover.jpg"])
}

func TestUploadImage_NoFile(t *testing.T) {
	router, _ := setupUploadTest()

	req, _ := http.NewRequest(http.MethodPost, "/uploads", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assertErrorCode(t, w, "INVALID_REQUEST")
}

func TestUploadImage_InvalidFormat(t *testing.T) {
	router, _ := setupUploadTest()

	req := newMultipartRequest(t, "file", "document.pdf", []byte("%PDF-1.4"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assertErrorCode(t, w, "INVALID_FILE_FORMAT")
}

func TestUploadImage_TooLarge(t *testing.T) {
	router, _ := setupUploadTest()

	oversized := make([]byte, 5*1024*1024+1)
	req := newMultipartRequest(t, "file", "huge.png", oversized)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assertErrorCode(t, w, "FILE_TOO_LARGE")
}

func TestUploadImage_StorageUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	services.SetS3Service(nil)

	router := gin.New()
	router.POST("/uploads", mockAuthMiddleware("uploader-id", false), UploadImage)

	req := newMultipartRequest(t, "file", "cover.jpg", []byte("content"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assertErrorCode(t, w, "INTERNAL_ERROR")
}
