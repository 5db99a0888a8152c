// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/jeranaias/chatdesk/internal/conversation"
	"github.com/jeranaias/chatdesk/internal/delivery"
	"github.com/jeranaias/chatdesk/internal/export"
	"github.com/jeranaias/chatdesk/internal/logging"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/telemetry"
)

// ShutdownTimeout bounds graceful shutdown in Run.
const ShutdownTimeout = 5 * time.Second

// CostSource reports the spend for the current month.
type CostSource interface {
	MonthlyCost(ctx context.Context) (float64, error)
}

// Deps are the collaborators served by the API.
type Deps struct {
	Manager *conversation.Manager
	Queue   *delivery.Queue
	Worker  *delivery.Worker
	Costs   CostSource
	Logger  *slog.Logger

	// Model labels exports.
	Model string
}

// Server is the local HTTP and websocket surface of a session.
type Server struct {
	mgr    *conversation.Manager
	queue  *delivery.Queue
	worker *delivery.Worker
	costs  CostSource
	logger *slog.Logger
	model  string

	hub      *Hub
	echo     *echo.Echo
	upgrader websocket.Upgrader
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type messageView struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"`
	Text      string   `json:"text"`
	Images    []string `json:"images,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Pending   bool     `json:"pending,omitempty"`
}

type conversationView struct {
	Type       string        `json:"type"`
	State      string        `json:"state"`
	Transcript string        `json:"transcript"`
	Messages   []messageView `json:"messages"`
}

type costView struct {
	Type       string    `json:"type"`
	MonthStart time.Time `json:"month_start"`
	Total      float64   `json:"total"`
}

type submitRequest struct {
	Text string `json:"text"`
}

func newMessageView(msg model.Message) messageView {
	v := messageView{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Timestamp: msg.Timestamp,
		Pending:   msg.IsPlaceholder(),
	}
	var texts []model.ContentElement
	for _, el := range msg.Content {
		if el.IsImage() {
			name := "image"
			if el.Path != "" {
				name = filepath.Base(el.Path)
			}
			v.Images = append(v.Images, name)
			continue
		}
		texts = append(texts, el)
	}
	v.Text = model.ExtractText(texts, false, model.DefaultShortenLen)
	return v
}

// =============================================================================
// SERVER
// =============================================================================

// New builds the server and subscribes it to conversation changes.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	s := &Server{
		mgr:    d.Manager,
		queue:  d.Queue,
		worker: d.Worker,
		costs:  d.Costs,
		logger: d.Logger,
		model:  d.Model,
		hub:    NewHub(d.Logger.With("component", "hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local API; browsers on other origins are expected.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))
	s.echo = e
	s.RegisterRoutes(e)

	s.mgr.OnChange(s.publish)
	return s
}

// requestLogger stores a logger tagged with the request ID in the request
// context for handlers to pick up.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		logger := s.logger.With("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(logging.WithContext(req.Context(), logger)))
		return next(c)
	}
}

// RegisterRoutes mounts the API on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/conversation", s.GetConversation)
	api.POST("/messages", s.PostMessage)
	api.POST("/reset", s.PostReset)
	api.GET("/cost", s.GetCost)
	api.GET("/transcript", s.GetTranscript)
	api.GET("/export", s.GetExport)
	e.GET("/ws", s.HandleWebSocket)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// StartBackground runs the websocket hub and drains the delivery queue
// until ctx is done.
func (s *Server) StartBackground(ctx context.Context) {
	go s.hub.Run(ctx)
	go s.pump(ctx)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.StartBackground(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.logger.Info("serving conversation API", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer stop()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// pump stands in for a UI tick loop: job results are applied as soon as
// they are posted.
func (s *Server) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.queue.Ready():
			s.queue.Drain()
		}
	}
}

func (s *Server) snapshot() conversationView {
	msgs := s.mgr.Messages()
	view := conversationView{
		Type:       "conversation",
		State:      s.mgr.State().String(),
		Transcript: s.mgr.TranscriptName(),
		Messages:   make([]messageView, 0, len(msgs)),
	}
	for _, msg := range msgs {
		view.Messages = append(view.Messages, newMessageView(msg))
	}
	return view
}

func (s *Server) publish() {
	if err := s.hub.BroadcastJSON(s.snapshot()); err != nil {
		s.logger.Warn("failed to publish conversation", "error", err)
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

// GetConversation returns the conversation snapshot.
// GET /api/conversation
func (s *Server) GetConversation(c echo.Context) error {
	return c.JSON(http.StatusOK, s.snapshot())
}

// PostMessage submits user text and starts the completion in the background.
// POST /api/messages
func (s *Server) PostMessage(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": conversation.ErrEmptyMessage.Error()})
	}

	msg, err := s.mgr.Submit(c.Request().Context(), req.Text)
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, conversation.ErrResponsePending):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		logging.FromContext(c.Request().Context()).Error("submit failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if err := s.worker.Go("complete", s.completeJob); err != nil {
		logging.FromContext(c.Request().Context()).Error("completion not started", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "server is shutting down"})
	}
	logging.FromContext(c.Request().Context()).Debug("message accepted", "id", msg.ID)
	return c.JSON(http.StatusAccepted, newMessageView(msg))
}

func (s *Server) completeJob(ctx context.Context) delivery.Update {
	if _, err := s.mgr.Complete(ctx); err != nil && !errors.Is(err, conversation.ErrDiscarded) {
		s.logger.Warn("completion failed", "error", err)
	}
	if s.costs == nil {
		return nil
	}
	total, err := s.costs.MonthlyCost(ctx)
	if err != nil {
		s.logger.Warn("failed to read monthly cost", "error", err)
		return nil
	}
	return func() {
		event := costView{Type: "cost", MonthStart: telemetry.MonthStart(time.Now()), Total: total}
		if err := s.hub.BroadcastJSON(event); err != nil {
			s.logger.Warn("failed to publish cost", "error", err)
		}
	}
}

// PostReset starts a new conversation.
// POST /api/reset
func (s *Server) PostReset(c echo.Context) error {
	s.mgr.Reset()
	return c.JSON(http.StatusOK, s.snapshot())
}

// GetCost returns the month-to-date spend.
// GET /api/cost
func (s *Server) GetCost(c echo.Context) error {
	if s.costs == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "cost tracking disabled"})
	}
	total, err := s.costs.MonthlyCost(c.Request().Context())
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("failed to read monthly cost", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read cost ledger"})
	}
	return c.JSON(http.StatusOK, costView{
		Type:       "cost",
		MonthStart: telemetry.MonthStart(time.Now()),
		Total:      total,
	})
}

// GetTranscript returns the markdown transcript.
// GET /api/transcript
func (s *Server) GetTranscript(c echo.Context) error {
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(s.mgr.Transcript()))
}

// GetExport renders the conversation as a download.
// GET /api/export?format=markdown|html|json
func (s *Server) GetExport(c echo.Context) error {
	exp, err := export.ForFormat(c.QueryParam("format"), nil)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	name := s.mgr.TranscriptName()
	data, err := exp.Export(export.NewDocument(name, s.model, s.mgr.Messages()))
	if errors.Is(err, export.ErrEmpty) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	} else if err != nil {
		logging.FromContext(c.Request().Context()).Error("export failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "export failed"})
	}

	filename := strings.TrimSuffix(name, filepath.Ext(name)) + exp.FileExtension()
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, exp.MimeType(), data)
}

// HandleWebSocket upgrades the connection and streams conversation events.
// GET /ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		logging.FromContext(c.Request().Context()).Debug("websocket upgrade failed", "error", err)
		return nil
	}

	initial, err := json.Marshal(s.snapshot())
	if err != nil {
		ws.Close()
		return err
	}
	s.hub.attach(ws, initial)
	return nil
}
