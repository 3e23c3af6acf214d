package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cad-viewer/backend/internal/events"
	"github.com/cad-viewer/backend/internal/models"
	"github.com/cad-viewer/backend/internal/storage"
	"github.com/cad-viewer/backend/internal/upload"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WebSocket message types for the chunked upload protocol. Model events
// from the hub share the same connection.
const (
	// Client -> Server messages
	MsgTypeUploadInit     = "upload:init"
	MsgTypeUploadChunk    = "upload:chunk"
	MsgTypeUploadComplete = "upload:complete"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeAck        = "ack"
	MsgTypeProgress   = "progress"
	MsgTypeComplete   = "complete"
	MsgTypeError      = "error"
	MsgTypeProcessing = "processing"
	MsgTypePong       = "pong"
)

// uploadSessionTTL bounds how long an unfinished chunked upload is kept.
const uploadSessionTTL = 30 * time.Minute

// UploadInitPayload starts a chunked upload.
type UploadInitPayload struct {
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
	TotalSize   int64  `json:"totalSize"`
	Encoding    string `json:"encoding,omitempty"` // "gzip", "none"
}

// UploadChunkPayload carries one chunk.
type UploadChunkPayload struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64 encoded chunk
}

// UploadCompletePayload finishes a chunked upload.
type UploadCompletePayload struct {
	UploadID     string `json:"uploadId"`
	OriginalSize int64  `json:"originalSize,omitempty"`
	Encoding     string `json:"encoding,omitempty"`
}

// WSProgressResponse reports upload progress.
type WSProgressResponse struct {
	UploadID string  `json:"uploadId,omitempty"`
	Progress float64 `json:"progress"`
	Stage    string  `json:"stage,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// WSCompleteResponse reports a stored upload and its index job.
type WSCompleteResponse struct {
	UploadID string           `json:"uploadId,omitempty"`
	FileInfo *models.FileInfo `json:"fileInfo,omitempty"`
	JobID    string           `json:"jobId,omitempty"`
	URL      string           `json:"url,omitempty"`
}

// WSErrorResponse reports a protocol error.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// UploadSession tracks an in-progress upload over WebSocket
type UploadSession struct {
	ID          string
	FileName    string
	TotalChunks int
	Chunks      map[int][]byte
	TotalSize   int64
	Encoding    string
	CreatedAt   time.Time
}

// WebSocketHandler serves the event stream and chunked uploads.
type WebSocketHandler struct {
	store    storage.Store
	hub      *events.Hub
	ingestor *Ingestor
	logger   *zap.Logger

	sessionsMu sync.Mutex
	sessions   map[string]*UploadSession
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(store storage.Store, hub *events.Hub, ingestor *Ingestor, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		store:    store,
		hub:      hub,
		ingestor: ingestor,
		logger:   logger.With(zap.String("component", "websocket")),
		sessions: make(map[string]*UploadSession),
	}
}

// HandleWebSocket subscribes the client to model events and serves the
// upload protocol until the client disconnects.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	conn, err := wsh.hub.Upgrade(c.Response(), c.Request())
	if err != nil {
		return err
	}
	defer wsh.hub.Unregister(conn)

	wsh.send(conn, events.NewMessage(events.TypeConnected, "", nil))

	for {
		var msg events.Message
		if err := conn.WS().ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.logger.Debug("connection error", zap.Error(err))
			}
			return nil
		}

		switch msg.Type {
		case MsgTypePing:
			wsh.send(conn, events.NewMessage(MsgTypePong, msg.ID, nil))
		case MsgTypeUploadInit:
			wsh.handleUploadInit(conn, msg)
		case MsgTypeUploadChunk:
			wsh.handleUploadChunk(conn, msg)
		case MsgTypeUploadComplete:
			wsh.handleUploadComplete(c, conn, msg)
		default:
			wsh.sendError(conn, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}
}

func (wsh *WebSocketHandler) handleUploadInit(conn *events.Conn, msg events.Message) {
	var payload UploadInitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(conn, "Invalid init payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	name, err := storage.CleanName(payload.FileName)
	if err != nil {
		wsh.sendError(conn, "Invalid file name: "+payload.FileName, "INVALID_PAYLOAD")
		return
	}
	if payload.TotalChunks <= 0 {
		wsh.sendError(conn, "totalChunks must be positive", "INVALID_PAYLOAD")
		return
	}

	session := &UploadSession{
		ID:          uuid.New().String(),
		FileName:    name,
		TotalChunks: payload.TotalChunks,
		Chunks:      make(map[int][]byte, payload.TotalChunks),
		TotalSize:   payload.TotalSize,
		Encoding:    payload.Encoding,
		CreatedAt:   time.Now(),
	}

	wsh.sessionsMu.Lock()
	wsh.pruneSessionsLocked(session.CreatedAt)
	wsh.sessions[session.ID] = session
	wsh.sessionsMu.Unlock()

	wsh.send(conn, events.NewMessage(MsgTypeAck, session.ID, nil))
	wsh.logger.Debug("upload initialized",
		zap.String("upload_id", session.ID),
		zap.Int("chunks", payload.TotalChunks),
		zap.Int64("size", payload.TotalSize))
}

func (wsh *WebSocketHandler) handleUploadChunk(conn *events.Conn, msg events.Message) {
	var payload UploadChunkPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(conn, "Invalid chunk payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		wsh.sendError(conn, "Invalid base64 data: "+err.Error(), "INVALID_DATA")
		return
	}

	wsh.sessionsMu.Lock()
	session, exists := wsh.sessions[payload.UploadID]
	var received, total int
	if exists && payload.ChunkIndex >= 0 && payload.ChunkIndex < session.TotalChunks {
		session.Chunks[payload.ChunkIndex] = chunk
		received, total = len(session.Chunks), session.TotalChunks
	}
	wsh.sessionsMu.Unlock()

	if !exists {
		wsh.sendError(conn, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}
	if total == 0 {
		wsh.sendError(conn, fmt.Sprintf("Chunk index out of range: %d", payload.ChunkIndex), "INVALID_PAYLOAD")
		return
	}

	wsh.send(conn, events.NewMessage(MsgTypeProgress, payload.UploadID, WSProgressResponse{
		UploadID: payload.UploadID,
		Progress: float64(received) / float64(total) * 100,
		Stage:    "uploading",
		Message:  fmt.Sprintf("Received chunk %d/%d", received, total),
	}))
}

func (wsh *WebSocketHandler) handleUploadComplete(c echo.Context, conn *events.Conn, msg events.Message) {
	var payload UploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		wsh.sendError(conn, "Invalid complete payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}

	wsh.sessionsMu.Lock()
	session, exists := wsh.sessions[payload.UploadID]
	if exists && len(session.Chunks) == session.TotalChunks {
		delete(wsh.sessions, payload.UploadID)
	}
	wsh.sessionsMu.Unlock()

	if !exists {
		wsh.sendError(conn, "Upload session not found: "+payload.UploadID, "SESSION_NOT_FOUND")
		return
	}
	if got := len(session.Chunks); got != session.TotalChunks {
		wsh.sendError(conn, fmt.Sprintf("Missing chunks: got %d, expected %d", got, session.TotalChunks), "INCOMPLETE_UPLOAD")
		return
	}

	wsh.send(conn, events.NewMessage(MsgTypeProcessing, payload.UploadID, WSProgressResponse{
		UploadID: payload.UploadID,
		Progress: 50,
		Stage:    "assembling",
		Message:  "Assembling file chunks...",
	}))

	var size int
	for _, chunk := range session.Chunks {
		size += len(chunk)
	}
	data := make([]byte, 0, size)
	for i := 0; i < session.TotalChunks; i++ {
		data = append(data, session.Chunks[i]...)
	}

	info, err := wsh.store.SaveBytes(session.FileName, data)
	if err != nil {
		wsh.sendError(conn, "Failed to save file: "+err.Error(), "SAVE_ERROR")
		return
	}

	encoding := payload.Encoding
	if encoding == "" {
		encoding = session.Encoding
	}
	if encoding != upload.EncodingGzip {
		encoding = ""
	}
	originalSize := payload.OriginalSize
	if originalSize == 0 {
		originalSize = session.TotalSize
	}

	resp := WSCompleteResponse{
		UploadID: payload.UploadID,
		FileInfo: info,
		URL:      models.ModelURL(info.Name),
	}
	if job := wsh.ingestor.Ingest(c.Request().Context(), info, encoding, originalSize); job != nil {
		resp.JobID = job.ID
	}
	wsh.send(conn, events.NewMessage(MsgTypeComplete, payload.UploadID, resp))

	wsh.logger.Info("upload complete", zap.String("name", info.Name), zap.Int64("size", info.Size))
}

// pruneSessionsLocked drops abandoned uploads. Caller holds sessionsMu.
func (wsh *WebSocketHandler) pruneSessionsLocked(now time.Time) {
	for id, s := range wsh.sessions {
		if now.Sub(s.CreatedAt) > uploadSessionTTL {
			delete(wsh.sessions, id)
		}
	}
}

func (wsh *WebSocketHandler) send(conn *events.Conn, msg events.Message) {
	if err := conn.Send(msg); err != nil {
		wsh.logger.Debug("failed to send message", zap.Error(err))
	}
}

func (wsh *WebSocketHandler) sendError(conn *events.Conn, message, code string) {
	wsh.send(conn, events.NewMessage(MsgTypeError, "", WSErrorResponse{
		Message: message,
		Code:    code,
	}))
}
