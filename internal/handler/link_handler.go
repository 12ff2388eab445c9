package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/tinyurl/internal/models"
	"github.com/SergeiKhy/tinyurl/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type LinkHandler struct {
	service service.LinkService
	logger  *zap.Logger
}

func NewLinkHandler(service service.LinkService, logger *zap.Logger) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{
		service: service,
		logger:  logger,
	}
}

type CreateLinkRequest struct {
	URL  string `json:"url"`
	Code string `json:"code,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ListLinks godoc
// @Summary List short links
// @Tags links
// @Produce json
// @Success 200 {array} models.LinkSummary
// @Failure 500 {object} ErrorResponse
// @Router /api/links [get]
func (h *LinkHandler) ListLinks(c *gin.Context) {
	links, err := h.service.ListLinks(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, lo.Map(links, func(link *models.Link, _ int) models.LinkSummary {
		return link.Summary()
	}))
}

// GetLink godoc
// @Summary Get link stats
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} models.LinkSummary
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{code} [get]
func (h *LinkHandler) GetLink(c *gin.Context) {
	link, err := h.service.GetLink(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, link.Summary())
}

// CreateLink godoc
// @Summary Create a short link
// @Description Create a new shortened URL with a generated or custom code
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link creation request"
// @Success 201 {object} models.LinkSummary
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/links [post]
func (h *LinkHandler) CreateLink(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	input := &models.CreateLinkInput{URL: req.URL}
	if req.Code != "" {
		input.Code = &req.Code
	}

	link, err := h.service.CreateLink(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.logger.Info("Link created", zap.String("code", link.Code))
	c.JSON(http.StatusCreated, link.Summary())
}

// DeleteLink godoc
// @Summary Delete a short link
// @Tags links
// @Param code path string true "Short code"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{code} [delete]
func (h *LinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")

	if err := h.service.DeleteLink(c.Request.Context(), code); err != nil {
		h.handleError(c, err)
		return
	}

	h.logger.Info("Link deleted", zap.String("code", code))
	c.Status(http.StatusNoContent)
}

// Redirect godoc
// @Summary Redirect to original URL
// @Description Counts the click, then redirects to the original URL
// @Tags links
// @Produce json
// @Param code path string true "Short code"
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Router /{code} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	link, err := h.service.ResolveLink(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Redirect(http.StatusFound, link.URL)
}

// handleError переводит ошибки сервиса в HTTP-ответы; детали ошибок хранилища остаются в логах
func (h *LinkHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid URL"})
	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Code must be 6-8 alphanumeric characters"})
	case errors.Is(err, service.ErrLinkNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Link not found"})
	case errors.Is(err, service.ErrCodeExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Code already exists"})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Server error"})
	}
}
