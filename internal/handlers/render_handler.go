package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rte-image-backend/internal/imagerender"
	"rte-image-backend/internal/models"
	"rte-image-backend/internal/service"
)

type RenderHandler struct {
	renderService service.RenderUseCase
}

func NewRenderHandler(renderService service.RenderUseCase) *RenderHandler {
	return &RenderHandler{renderService: renderService}
}

// RenderFragment runs the adapter for one hook call.
func (h *RenderHandler) RenderFragment(c *gin.Context) {
	var req models.RenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	renderContext, ok := imagerender.ParseContext(req.Context)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown render context"})
		return
	}

	request := imagerender.Request{Context: renderContext, Fragment: req.Fragment}
	if renderContext == imagerender.ContextLink {
		if req.Link == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "link context requires link attributes"})
			return
		}
		request.Link = &imagerender.LinkAttributes{
			Href:   req.Link.Href,
			Target: req.Link.Target,
			Title:  req.Link.Title,
			Class:  req.Link.Class,
			Popup:  req.Link.Popup,
		}
	}

	result := h.renderService.RenderFragment(c.Request.Context(), request)

	diagnostics := result.Diagnostics
	if diagnostics == nil {
		diagnostics = []imagerender.Diagnostic{}
	}

	c.JSON(http.StatusOK, gin.H{
		"markup":      result.Markup,
		"variant":     result.Variant,
		"changed":     result.Changed,
		"deferred":    result.Deferred,
		"diagnostics": diagnostics,
	})
}

func (h *RenderHandler) RenderContent(c *gin.Context) {
	var req models.RenderContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, withDiagnostics(h.renderService.RenderHTML(c.Request.Context(), req.HTML)))
}

func (h *RenderHandler) RenderRecord(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content id"})
		return
	}

	rendered, err := h.renderService.RenderRecord(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, service.ErrContentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, withDiagnostics(rendered))
}

func withDiagnostics(rendered *service.RenderedContent) *service.RenderedContent {
	if rendered.Diagnostics == nil {
		copied := *rendered
		copied.Diagnostics = []imagerender.Diagnostic{}
		return &copied
	}
	return rendered
}
