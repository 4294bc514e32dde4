package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"opsagent.app/history/internal/history"
	"opsagent.app/history/internal/http/dto"
	"opsagent.app/history/internal/http/middleware"
	"opsagent.app/history/internal/store"
)

type ConversationHandler struct {
	history history.Service
}

func NewConversationHandler(svc history.Service) *ConversationHandler {
	return &ConversationHandler{history: svc}
}

func (h *ConversationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	ident, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	summaries, err := h.history.ListConversations(ctx, ident)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list conversations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": dto.ToSummaryResponses(summaries)})
}

func (h *ConversationHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	ident, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var req dto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.history.CreateConversation(ctx, ident, req.Model)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToConversationResponse(conv))
}

func (h *ConversationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	ident, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	conv, err := h.history.GetConversation(ctx, c.Param("id"), ident)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get conversation"})
		return
	}

	c.JSON(http.StatusOK, dto.ToConversationResponse(conv))
}

func (h *ConversationHandler) Save(c *gin.Context) {
	ctx := c.Request.Context()

	ident, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var req dto.SaveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv := req.ToModel(c.Param("id"))
	if err := h.history.SaveConversation(ctx, ident, conv); err != nil {
		switch {
		case errors.Is(err, history.ErrInvalidConversation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		default:
			slog.ErrorContext(ctx, "failed to save conversation", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save conversation"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ToConversationResponse(conv))
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	ident, ok := middleware.CallerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	if err := h.history.DeleteConversation(ctx, c.Param("id"), ident); err != nil {
		slog.ErrorContext(ctx, "failed to delete conversation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}

	c.Status(http.StatusNoContent)
}
