package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"voicepipe-server-go/internal/domain/capability"
	"voicepipe-server-go/internal/domain/ingest"
	"voicepipe-server-go/internal/domain/pipeline"
	"voicepipe-server-go/internal/domain/session"
	"voicepipe-server-go/internal/domain/session/store"
	"voicepipe-server-go/internal/platform/config"
	platerr "voicepipe-server-go/internal/platform/errors"
	httptransport "voicepipe-server-go/internal/transport/http"
	"voicepipe-server-go/internal/util"
	"voicepipe-server-go/internal/utils"
)

const (
	// MaxUploadSize caps a single submission at 50MB.
	MaxUploadSize = 50 * 1024 * 1024
)

// Service exposes the pipeline over HTTP: submissions in, results out.
type Service struct {
	config   *config.Config
	logger   *utils.Logger
	ingest   *ingest.Service
	sessions *session.Service
	registry *capability.Registry
	queue    *pipeline.Queue
	started  time.Time
}

// NewService wires the API surface to the ingestion, session and capability layers.
func NewService(
	cfg *config.Config,
	logger *utils.Logger,
	ing *ingest.Service,
	sessions *session.Service,
	registry *capability.Registry,
	queue *pipeline.Queue,
) (*Service, error) {
	if cfg == nil {
		return nil, platerr.New(platerr.KindConfig, "api.new", "config is required")
	}
	if ing == nil {
		return nil, platerr.New(platerr.KindConfig, "api.new", "ingest service is required")
	}
	if sessions == nil {
		return nil, platerr.New(platerr.KindConfig, "api.new", "session service is required")
	}
	if registry == nil {
		return nil, platerr.New(platerr.KindConfig, "api.new", "capability registry is required")
	}
	if queue == nil {
		return nil, platerr.New(platerr.KindConfig, "api.new", "job queue is required")
	}

	return &Service{
		config:   cfg,
		logger:   logger,
		ingest:   ing,
		sessions: sessions,
		registry: registry,
		queue:    queue,
		started:  time.Now(),
	}, nil
}

// Register attaches the API routes to the /api group and /health to the engine root.
func (s *Service) Register(ctx context.Context, api *gin.RouterGroup, root gin.IRoutes) error {
	api.POST("/upload", s.handleUpload)
	api.POST("/stream", s.handleStream)
	api.GET("/transcription/:session_id", s.handleTranscription)
	api.GET("/tts/:ref", s.handleTTS)
	api.POST("/share", s.handleShare)

	if root != nil {
		root.GET("/health", s.handleHealth)
	}

	if s.logger != nil {
		s.logger.InfoTag("HTTP", "pipeline API routes registered")
	}
	return nil
}

// handleUpload accepts one complete audio submission and queues it for
// processing. The session id in the response is the poll/push handle.
// Clients submit under the "file" form field; "audio" is accepted as well
// for parity with the streaming endpoint.
func (s *Service) handleUpload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		file, header, err = c.Request.FormFile("audio")
	}
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "Audio file is missing")
		return
	}
	defer file.Close()

	if header.Size > MaxUploadSize {
		httptransport.RespondError(c, http.StatusBadRequest, "audio file too large")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to read audio file")
		return
	}
	if len(data) == 0 {
		httptransport.RespondError(c, http.StatusBadRequest, "Audio file is missing")
		return
	}

	sessionID, err := s.ingest.SubmitComplete(c.Request.Context(), data, filepath.Ext(header.Filename))
	if err != nil {
		if errors.Is(err, util.ErrQueueFull) {
			httptransport.RespondError(c, http.StatusServiceUnavailable, "processing queue is full, try again later")
			return
		}
		if s.logger != nil {
			s.logger.WarnTag("HTTP", "upload rejected: %v", err)
		}
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to accept audio file")
		return
	}

	httptransport.RespondProcessing(c, http.StatusOK, sessionID)
}

// handleStream accepts one chunk of a client-declared session. The final
// chunk assembles the submission and queues the job.
func (s *Service) handleStream(c *gin.Context) {
	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "session_id is required")
		return
	}

	chunkIndex, err := strconv.Atoi(c.DefaultPostForm("chunk_index", "0"))
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "chunk_index must be an integer")
		return
	}
	final := isTruthy(c.PostForm("is_final"))

	var data []byte
	if file, _, ferr := c.Request.FormFile("audio"); ferr == nil {
		data, err = io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
		file.Close()
		if err != nil {
			httptransport.RespondError(c, http.StatusInternalServerError, "failed to read audio chunk")
			return
		}
	} else if !final {
		httptransport.RespondError(c, http.StatusBadRequest, "Audio file is missing")
		return
	}

	queued, err := s.ingest.SubmitChunk(c.Request.Context(), sessionID, chunkIndex, data, final)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrQueueFull):
			httptransport.RespondError(c, http.StatusServiceUnavailable, "processing queue is full, try again later")
		case platerr.IsKind(err, platerr.KindInput):
			httptransport.RespondError(c, http.StatusBadRequest, err.Error())
		default:
			if s.logger != nil {
				s.logger.WarnTag("HTTP", "chunk rejected for %s: %v", sessionID, err)
			}
			httptransport.RespondError(c, http.StatusInternalServerError, "failed to accept audio chunk")
		}
		return
	}

	if queued {
		httptransport.RespondProcessing(c, http.StatusOK, sessionID)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "received",
		"session_id":  sessionID,
		"chunk_index": chunkIndex,
	})
}

// handleTranscription polls for a finalized result. Unknown ids report
// processing rather than not-found so clients can poll before the worker
// finishes, or even before the job is queued.
func (s *Service) handleTranscription(c *gin.Context) {
	sessionID := c.Param("session_id")

	result, err := s.sessions.Lookup(c.Request.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && s.logger != nil {
			s.logger.WarnTag("STORE", "lookup failed for %s: %v", sessionID, err)
		}
		httptransport.RespondProcessing(c, http.StatusAccepted, "")
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleTTS streams a synthesized audio file by its result reference.
func (s *Service) handleTTS(c *gin.Context) {
	ref := c.Param("ref")

	path, err := s.sessions.Archive().TTSPath(ref)
	if err != nil {
		httptransport.RespondError(c, http.StatusNotFound, "audio not found")
		return
	}
	if _, err := os.Stat(path); err != nil {
		httptransport.RespondError(c, http.StatusNotFound, "audio not found")
		return
	}

	c.Header("Content-Type", audioContentType(path))
	c.File(path)
}

type shareRequest struct {
	Platform        string `json:"platform"`
	Content         string `json:"content"`
	TranscriptionID string `json:"transcription_id"`
}

// handleShare formats a share URL for a transcription on a social platform.
func (s *Service) handleShare(c *gin.Context) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid share request")
		return
	}
	if req.Content == "" {
		httptransport.RespondError(c, http.StatusBadRequest, "content is required")
		return
	}

	text := url.QueryEscape(req.Content)
	var shareURL string
	switch strings.ToLower(req.Platform) {
	case "telegram":
		shareURL = "https://t.me/share/url?url=&text=" + text
	case "whatsapp":
		shareURL = "https://wa.me/?text=" + text
	case "twitter":
		shareURL = "https://twitter.com/intent/tweet?text=" + text
	default:
		httptransport.RespondError(c, http.StatusBadRequest, "unsupported share platform")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"platform":         req.Platform,
		"share_url":        shareURL,
		"transcription_id": req.TranscriptionID,
	})
}

// handleHealth reports capability states, queue depth and system load.
func (s *Service) handleHealth(c *gin.Context) {
	models := make(map[string]string, len(capability.All))
	for name, status := range s.registry.Statuses() {
		models[string(name)] = string(status)
	}

	system := gin.H{}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		system["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		system["memory_percent"] = vm.UsedPercent
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"models":         models,
		"queue_size":     s.queue.Depth(),
		"queue_capacity": s.queue.Capacity(),
		"system":         system,
	})
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func audioContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	default:
		return "audio/wav"
	}
}
