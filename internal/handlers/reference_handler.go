package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"rte-image-backend/internal/models"
	"rte-image-backend/internal/service"
	"rte-image-backend/pkg/validator"
)

type ReferenceHandler struct {
	referenceService service.ReferenceUseCase
}

func NewReferenceHandler(referenceService service.ReferenceUseCase) *ReferenceHandler {
	return &ReferenceHandler{referenceService: referenceService}
}

func (h *ReferenceHandler) List(c *gin.Context) {
	table := c.Param("table")
	if !validator.ValidTableName(table) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid table name"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	refs, err := h.referenceService.References(table, uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"references": refs, "count": len(refs)})
}

// Validate reports issues. ?ids=1,2,3 narrows the run to those records.
func (h *ReferenceHandler) Validate(c *gin.Context) {
	ids, err := parseIDList(c.Query("ids"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ids parameter"})
		return
	}

	report, err := h.referenceService.Validate(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *ReferenceHandler) Fix(c *gin.Context) {
	var req models.FixReferencesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	report, err := h.referenceService.Fix(c.Request.Context(), req.RecordIDs, req.DryRun)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *ReferenceHandler) Reindex(c *gin.Context) {
	report, err := h.referenceService.Reindex(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func parseIDList(raw string) ([]uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
