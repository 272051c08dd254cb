package handlers

import (
	"fmt"
	"path/filepath"

	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var allowedUploadTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// MaxUploadBytes caps a single uploaded file.
var MaxUploadBytes int64 = 25 << 20

type UploadResult struct {
	OriginalName string `json:"originalName"`
	Key          string `json:"key"`
	URL          string `json:"url"`
}

// UploadFiles stores every multipart "file" part and returns where each one
// ended up. Attachment URLs on tasks come from here.
func UploadFiles(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "No file provided")
	}
	files := form.File["file"]
	if len(files) == 0 {
		return fail(c, fiber.StatusBadRequest, "No file provided")
	}

	for _, file := range files {
		if !allowedUploadTypes[file.Header.Get("Content-Type")] {
			return fail(c, fiber.StatusBadRequest, "File type is not allowed")
		}
		if file.Size > MaxUploadBytes {
			return fail(c, fiber.StatusBadRequest, "File is too large")
		}
	}

	results := make([]UploadResult, 0, len(files))
	for _, file := range files {
		src, err := file.Open()
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, "An error occurred during the file upload")
		}

		key := fmt.Sprintf("uploads/%s-%s", uuid.New().String(), filepath.Base(file.Filename))
		url, err := services.Files.Put(c.UserContext(), key, file.Header.Get("Content-Type"), src)
		src.Close()
		if err != nil {
			logger.Log.Error("upload failed", zap.String("key", key), zap.Error(err))
			return fail(c, fiber.StatusInternalServerError, "An error occurred during the file upload")
		}

		results = append(results, UploadResult{
			OriginalName: file.Filename,
			Key:          key,
			URL:          url,
		})
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"results": results,
	})
}
