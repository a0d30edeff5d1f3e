package handlers

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/middleware"
	"github.com/yungbote/farmguard-backend/internal/sse"
)

type SSEHandler struct {
	log     *logger.Logger
	hub     *sse.Hub
	mu      sync.Mutex
	clients map[uuid.UUID]*sse.Client
}

func NewSSEHandler(log *logger.Logger, hub *sse.Hub) *SSEHandler {
	return &SSEHandler{
		log:     log.With("handler", "SSEHandler"),
		hub:     hub,
		clients: make(map[uuid.UUID]*sse.Client),
	}
}

// GET /sse/stream?channels=farm:<id>,danger:all
func (h *SSEHandler) SSEStream(c *gin.Context) {
	userID := middleware.RequestUserID(c)
	if userID == uuid.Nil {
		RespondError(c, http.StatusForbidden, "forbidden", nil)
		return
	}

	client := h.hub.NewClient(userID)
	for _, ch := range strings.Split(c.Query("channels"), ",") {
		h.hub.AddChannel(client, ch)
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, client.ID)
		h.mu.Unlock()
		h.hub.CloseClient(client)
	}()

	c.Writer.Header().Set("X-Client-ID", client.ID.String())
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

type subscribeRequest struct {
	ClientID string `json:"client_id"`
	Channel  string `json:"channel"`
}

// POST /sse/subscribe
func (h *SSEHandler) SSESubscribe(c *gin.Context) {
	h.changeSubscription(c, h.hub.AddChannel)
}

// POST /sse/unsubscribe
func (h *SSEHandler) SSEUnsubscribe(c *gin.Context) {
	h.changeSubscription(c, h.hub.RemoveChannel)
}

func (h *SSEHandler) changeSubscription(c *gin.Context, apply func(*sse.Client, string)) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_client_id", err)
		return
	}

	h.mu.Lock()
	client, ok := h.clients[clientID]
	h.mu.Unlock()
	if !ok {
		RespondError(c, http.StatusNotFound, "client_not_found", nil)
		return
	}
	apply(client, req.Channel)
	RespondOK(c, gin.H{"ok": true})
}
