package utils

import (
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateImageFile(t *testing.T) {
	tests := []struct {
		name         string
		filename     string
		size         int64
		expectedCode string
	}{
		{"JPEG accepted", "cover.jpg", 1024, ""},
		{"Uppercase extension accepted", "cover.PNG", 1024, ""},
		{"WebP accepted", "cover.webp", 1024, ""},
		{"At the size limit", "cover.jpeg", MaxFileSize, ""},
		{"Over the size limit", "cover.jpg", MaxFileSize + 1, "FILE_TOO_LARGE"},
		{"PDF rejected", "document.pdf", 1024, "INVALID_FILE_FORMAT"},
		{"No extension rejected", "cover", 1024, "INVALID_FILE_FORMAT"},
		{"GIF rejected", "animation.gif", 1024, "INVALID_FILE_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := &multipart.FileHeader{Filename: tt.filename, Size: tt.size}
			err := ValidateImageFile(header)

			if tt.expectedCode == "" {
				assert.NoError(t, err)
				return
			}

			var uploadErr *FileUploadError
			assert.ErrorAs(t, err, &uploadErr)
			assert.Equal(t, tt.expectedCode, uploadErr.Code)
		})
	}
}
