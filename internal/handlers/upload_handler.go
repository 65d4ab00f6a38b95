package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rte-image-backend/internal/models"
	"rte-image-backend/internal/service"
)

type UploadHandler struct {
	uploadService service.FileUseCase
	publicBaseURL string
}

func NewUploadHandler(uploadService service.FileUseCase, publicBaseURL string) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, publicBaseURL: publicBaseURL}
}

func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		file, err = c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
			return
		}
	}

	preferredName := strings.TrimSpace(c.PostForm("name"))
	metadata := models.UpdateFileRequest{
		Alternative: optionalForm(c, "alternative"),
		Title:       optionalForm(c, "title"),
		Description: optionalForm(c, "description"),
	}

	upload, err := h.uploadService.Upload(file, preferredName, metadata)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"file": upload,
		"url":  upload.PublicPath(h.publicBaseURL),
	})
}

func (h *UploadHandler) Get(c *gin.Context) {
	id, ok := parseFileID(c)
	if !ok {
		return
	}

	file, err := h.uploadService.GetByID(id)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file": file,
		"url":  file.PublicPath(h.publicBaseURL),
	})
}

func (h *UploadHandler) Update(c *gin.Context) {
	id, ok := parseFileID(c)
	if !ok {
		return
	}

	var req models.UpdateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := h.uploadService.UpdateMetadata(id, req)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": file})
}

func (h *UploadHandler) Delete(c *gin.Context) {
	id, ok := parseFileID(c)
	if !ok {
		return
	}

	if err := h.uploadService.Delete(id); err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "file deleted"})
}

func parseFileID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return 0, false
	}
	return uint(id), true
}

func optionalForm(c *gin.Context, key string) *string {
	value, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	return &value
}

func writeUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnsupportedUpload),
		errors.Is(err, service.ErrUploadTooLarge),
		errors.Is(err, service.ErrUploadMissing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
