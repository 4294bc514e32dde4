package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"opsagent.app/history/internal/history"
	"opsagent.app/history/internal/http/middleware"
	"opsagent.app/history/internal/http/router"
	"opsagent.app/history/internal/model"
	"opsagent.app/history/internal/store"
)

var _ = Describe("Conversation endpoints", func() {
	var (
		svc    *mockHistoryService
		engine *gin.Engine
	)

	const (
		ownerID   = "7e3f1a9c-owner"
		ownerName = "Alice Example"
	)

	request := func(method, path string, body any) *httptest.ResponseRecorder {
		var reader *bytes.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			Expect(err).ToNot(HaveOccurred())
			reader = bytes.NewReader(payload)
		} else {
			reader = bytes.NewReader(nil)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-MS-CLIENT-PRINCIPAL-ID", ownerID)
		req.Header.Set("X-MS-CLIENT-PRINCIPAL-NAME", ownerName)
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		svc = &mockHistoryService{}
		engine = gin.New()
		router.SetupRoutes(engine, svc, router.RouterConfig{
			Identity: middleware.IdentityConfig{},
		})
	})

	Describe("GET /api/v1/conversations", func() {
		It("returns the caller's summaries", func() {
			now := time.Now().UTC()
			svc.listFn = func(_ context.Context, ident model.Identity) ([]model.ConversationSummary, error) {
				Expect(ident.OwnerID).To(Equal(ownerID))
				Expect(ident.DisplayName).To(Equal(ownerName))
				return []model.ConversationSummary{
					{ID: "conv-2", Title: "Newer", LastModified: now},
					{ID: "conv-1", Title: "Older", LastModified: now.Add(-time.Hour)},
				}, nil
			}

			rec := request(http.MethodGet, "/api/v1/conversations", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body struct {
				Conversations []struct {
					ConversationID string `json:"conversation_id"`
					Title          string `json:"title"`
				} `json:"conversations"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Conversations).To(HaveLen(2))
			Expect(body.Conversations[0].ConversationID).To(Equal("conv-2"))
		})

		It("returns an empty list rather than null", func() {
			rec := request(http.MethodGet, "/api/v1/conversations", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"conversations":[]`))
		})

		It("rejects requests without an identity header", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("maps service failures to 500", func() {
			svc.listFn = func(context.Context, model.Identity) ([]model.ConversationSummary, error) {
				return nil, errors.New("pg down")
			}
			rec := request(http.MethodGet, "/api/v1/conversations", nil)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("POST /api/v1/conversations", func() {
		It("creates a conversation and returns 201", func() {
			rec := request(http.MethodPost, "/api/v1/conversations", gin.H{"model": "gpt-4o"})
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var body struct {
				ConversationID string `json:"conversation_id"`
				Title          string `json:"title"`
				Model          string `json:"model"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.ConversationID).To(Equal("generated-id"))
			Expect(body.Title).To(Equal("New chat"))
			Expect(body.Model).To(Equal("gpt-4o"))
		})

		It("rejects malformed JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", bytes.NewReader([]byte("{not json")))
			req.Header.Set("X-MS-CLIENT-PRINCIPAL-ID", ownerID)
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/v1/conversations/:id", func() {
		It("returns the full conversation with messages in order", func() {
			now := time.Now().UTC()
			svc.getFn = func(_ context.Context, conversationID string, ident model.Identity) (*model.Conversation, error) {
				Expect(conversationID).To(Equal("conv-1"))
				return &model.Conversation{
					ID:      "conv-1",
					OwnerID: ident.OwnerID,
					Title:   "Key rotation",
					Messages: []model.Message{
						{Seq: 0, Role: model.RoleUser, Content: "q", Time: now},
						{Seq: 1, Role: model.RoleAssistant, Content: "a", Time: now},
					},
				}, nil
			}

			rec := request(http.MethodGet, "/api/v1/conversations/conv-1", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body struct {
				Messages []struct {
					Seq  int    `json:"seq"`
					Role string `json:"role"`
				} `json:"messages"`
			}
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Messages).To(HaveLen(2))
			Expect(body.Messages[1].Seq).To(Equal(1))
		})

		It("maps not-found and not-owned to the same 404", func() {
			svc.getFn = func(context.Context, string, model.Identity) (*model.Conversation, error) {
				return nil, store.ErrNotFound
			}
			rec := request(http.MethodGet, "/api/v1/conversations/conv-x", nil)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("PUT /api/v1/conversations/:id", func() {
		saveBody := gin.H{
			"title": "Key rotation",
			"model": "gpt-4o",
			"messages": []gin.H{
				{"role": "user", "content": "q"},
				{"role": "assistant", "content": "a"},
			},
		}

		It("persists the payload under the path ID", func() {
			var saved *model.Conversation
			svc.saveFn = func(_ context.Context, _ model.Identity, conv *model.Conversation) error {
				saved = conv
				return nil
			}

			rec := request(http.MethodPut, "/api/v1/conversations/conv-1", saveBody)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(saved).ToNot(BeNil())
			Expect(saved.ID).To(Equal("conv-1"))
			Expect(saved.Messages).To(HaveLen(2))
			Expect(saved.Messages[0].Seq).To(Equal(0))
			Expect(saved.Messages[1].Seq).To(Equal(1))
		})

		It("maps validation failures to 400", func() {
			svc.saveFn = func(context.Context, model.Identity, *model.Conversation) error {
				return fmt.Errorf("%w: unknown role", history.ErrInvalidConversation)
			}
			rec := request(http.MethodPut, "/api/v1/conversations/conv-1", saveBody)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps cross-owner saves to 404", func() {
			svc.saveFn = func(context.Context, model.Identity, *model.Conversation) error {
				return store.ErrNotFound
			}
			rec := request(http.MethodPut, "/api/v1/conversations/conv-1", saveBody)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("rejects messages without a role", func() {
			rec := request(http.MethodPut, "/api/v1/conversations/conv-1", gin.H{
				"messages": []gin.H{{"content": "no role"}},
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("DELETE /api/v1/conversations/:id", func() {
		It("returns 204 on success", func() {
			var deletedID string
			svc.deleteFn = func(_ context.Context, conversationID string, _ model.Identity) error {
				deletedID = conversationID
				return nil
			}

			rec := request(http.MethodDelete, "/api/v1/conversations/conv-1", nil)
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(deletedID).To(Equal("conv-1"))
		})

		It("maps store failures to 500", func() {
			svc.deleteFn = func(context.Context, string, model.Identity) error {
				return errors.New("pg down")
			}
			rec := request(http.MethodDelete, "/api/v1/conversations/conv-1", nil)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("GET /health", func() {
		It("responds without authentication", func() {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})
})
