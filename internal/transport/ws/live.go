package ws

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"voicepipe-server-go/internal/domain/ingest"
	"voicepipe-server-go/internal/domain/notify"
	"voicepipe-server-go/internal/domain/session/model"
	"voicepipe-server-go/internal/utils"
)

// inboundFrame is one audio chunk from a live client.
type inboundFrame struct {
	Audio      string `json:"audio"`
	SessionID  string `json:"session_id"`
	ChunkIndex int    `json:"chunk_index"`
	IsFinal    bool   `json:"is_final"`
}

type ackFrame struct {
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
}

type resultFrame struct {
	Type      string       `json:"type"`
	SessionID string       `json:"session_id"`
	Result    model.Result `json:"result"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// LiveHandler drives one live connection: chunks in over frames, results
// pushed back as soon as the pipeline finalizes them. Each session id seen
// on the connection gets its own notifier subscription.
type LiveHandler struct {
	conn     *Connection
	ingest   *ingest.Service
	notifier *notify.Notifier
	logger   *utils.Logger

	mu        sync.Mutex
	listeners map[string]notify.Handler

	closeOnce sync.Once
}

// NewLiveHandler builds the session handler for an upgraded connection.
func NewLiveHandler(conn *Connection, ing *ingest.Service, notifier *notify.Notifier, logger *utils.Logger) *LiveHandler {
	return &LiveHandler{
		conn:      conn,
		ingest:    ing,
		notifier:  notifier,
		logger:    logger,
		listeners: make(map[string]notify.Handler),
	}
}

// GetSessionID returns the connection identifier.
func (h *LiveHandler) GetSessionID() string {
	return h.conn.GetID()
}

// Handle reads frames until the client disconnects.
func (h *LiveHandler) Handle() {
	for {
		messageType, payload, err := h.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		h.handleFrame(payload)
	}
}

func (h *LiveHandler) handleFrame(payload []byte) {
	var frame inboundFrame
	if err := sonic.Unmarshal(payload, &frame); err != nil {
		h.sendError("invalid frame")
		return
	}
	if frame.SessionID == "" {
		h.sendError("session_id is required")
		return
	}

	var data []byte
	if frame.Audio != "" {
		decoded, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			h.sendError("audio must be base64 encoded")
			return
		}
		data = decoded
	}

	h.subscribe(frame.SessionID)

	queued, err := h.ingest.SubmitChunk(context.Background(), frame.SessionID, frame.ChunkIndex, data, frame.IsFinal)
	if err != nil {
		if h.logger != nil {
			h.logger.WarnTag("WS", "chunk rejected for %s: %v", frame.SessionID, err)
		}
		h.sendError(err.Error())
		return
	}

	status := "received"
	if queued {
		status = "processing_final"
	}
	h.send(ackFrame{
		SessionID:  frame.SessionID,
		Status:     status,
		ChunkIndex: frame.ChunkIndex,
	})
}

// subscribe registers a push listener for the session, once per session id.
func (h *LiveHandler) subscribe(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.listeners[sessionID]; ok {
		return
	}

	listener := func(result model.Result) {
		h.send(resultFrame{
			Type:      "result",
			SessionID: result.SessionID,
			Result:    result,
		})
	}
	if err := h.notifier.Subscribe(sessionID, listener); err != nil {
		if h.logger != nil {
			h.logger.WarnTag("WS", "subscribe failed for %s: %v", sessionID, err)
		}
		return
	}
	h.listeners[sessionID] = listener
}

func (h *LiveHandler) send(frame any) {
	payload, err := sonic.Marshal(frame)
	if err != nil {
		return
	}
	if err := h.conn.WriteMessage(websocket.TextMessage, payload); err != nil && h.logger != nil {
		h.logger.DebugTag("WS", "write failed on %s: %v", h.conn.GetID(), err)
	}
}

func (h *LiveHandler) sendError(message string) {
	h.send(errorFrame{Type: "error", Message: message})
}

// Close drops all notifier subscriptions for the connection.
func (h *LiveHandler) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for sessionID, listener := range h.listeners {
			_ = h.notifier.Unsubscribe(sessionID, listener)
		}
		h.listeners = make(map[string]notify.Handler)
	})
}
