package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/panelkit/runtime/capability"
	"github.com/panelkit/runtime/metrics"
	"github.com/panelkit/runtime/panelmgr"
	"github.com/panelkit/runtime/sandbox"
	"github.com/panelkit/runtime/snapshot"
)

// Server is the HTTP/WebSocket boundary over a panelmgr.Manager, per
// spec §6.1/§6.2. Grounded on streamspace-dev-streamspace/api/cmd/main.go's
// gin-router-plus-gorilla-hub composition.
type Server struct {
	panels    *panelmgr.Manager
	sandbox   sandbox.Interpreter
	metrics   *metrics.Collector
	log       *zap.Logger
	startedAt time.Time
	version   string
	snapshots *snapshot.Exporter // nil unless snapshot export is configured
}

// New builds a Server. sandboxPool backs /health and /metrics gauges;
// it is the same pool instance passed to panelmgr.NewManager.
func New(panels *panelmgr.Manager, sandboxPool sandbox.Interpreter, coll *metrics.Collector, log *zap.Logger, version string) *Server {
	return &Server{
		panels:    panels,
		sandbox:   sandboxPool,
		metrics:   coll,
		log:       log,
		startedAt: time.Now(),
		version:   version,
	}
}

// WithSnapshots enables POST /panels/:id/snapshot, exporting to exp.
func (s *Server) WithSnapshots(exp *snapshot.Exporter) *Server {
	s.snapshots = exp
	return s
}

// Router builds the gin.Engine implementing spec §6.1 and mounts the
// WebSocket upgrade endpoint from §6.2.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)
	r.POST("/panels", s.handleCreatePanel)
	r.GET("/panels", s.handleListPanels)
	r.GET("/panels/:id", s.handleGetPanel)
	r.GET("/panels/:id/state", s.handleGetState)
	r.DELETE("/panels/:id", s.handleDestroyPanel)
	r.POST("/panels/:id/trigger/:tool", s.handleTrigger)
	r.GET("/panels/:id/ws", s.handleWS)
	r.POST("/panels/:id/snapshot", s.handleSnapshot)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.sandbox.Stats()
	panels := s.panels.List()

	active, suspended := 0, 0
	for _, p := range panels {
		switch p.Status {
		case panelmgr.StatusSuspended:
			suspended++
		case panelmgr.StatusRunning:
			active++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startedAt).Seconds(),
		"panels": gin.H{
			"active":    active,
			"suspended": suspended,
		},
		"runtime": gin.H{
			"activeInstances":    stats.ActiveInstances,
			"availableInstances": stats.AvailableInstances,
			"cacheHitRate":       stats.CacheHitRate,
			"memoryBytes":        stats.TotalMemoryBytes,
		},
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	stats := s.sandbox.Stats()
	snap := s.metrics.Snapshot(metrics.SandboxGauges{
		ActiveInstances:    stats.ActiveInstances,
		AvailableInstances: stats.AvailableInstances,
		CacheHitRate:       stats.CacheHitRate,
		TotalExecutions:    stats.TotalExecutions,
	})
	c.Header("Content-Type", "text/plain; version=0.0.4")
	c.String(http.StatusOK, renderExposition(snap))
}

// createPanelRequest mirrors spec §6.3's panel creation input.
type createPanelRequest struct {
	ID       string                  `json:"id,omitempty"`
	Kind     string                  `json:"kind"`
	Title    string                  `json:"title,omitempty"`
	Tools    []toolRequest           `json:"tools,omitempty"`
	State    []panelmgr.StateSlotSpec `json:"state,omitempty"`
	Grants   []string                `json:"capabilities,omitempty"`
	Metadata map[string]any          `json:"metadata,omitempty"`
}

type toolRequest struct {
	Name        string              `json:"name"`
	Source      string              `json:"source"`
	Trigger     triggerRequest      `json:"trigger"`
	Description string              `json:"description,omitempty"`
	Grants      []string            `json:"capabilities,omitempty"`
}

type triggerRequest struct {
	Type    string `json:"type"`
	Ms      int    `json:"ms,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Path    string `json:"path,omitempty"`
	Cron    string `json:"expression,omitempty"`
}

func (s *Server) handleCreatePanel(c *gin.Context) {
	var req createPanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_HANDLER", "message": err.Error()})
		return
	}

	tools := make([]panelmgr.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, panelmgr.Tool{
			Name:        t.Name,
			Source:      t.Source,
			Description: t.Description,
			Grants:      capability.ParseSet(capability.OriginDeclared, t.Grants),
			Trigger: panelmgr.TriggerSpec{
				Type:       panelmgr.TriggerType(t.Trigger.Type),
				IntervalMs: t.Trigger.Ms,
				Pattern:    t.Trigger.Pattern,
				Path:       t.Trigger.Path,
				Cron:       t.Trigger.Cron,
			},
		})
	}

	p, err := s.panels.CreatePanel(panelmgr.Config{
		ID:       req.ID,
		Kind:     req.Kind,
		Title:    req.Title,
		Tools:    tools,
		State:    req.State,
		Grants:   req.Grants,
		Metadata: req.Metadata,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_HANDLER", "message": err.Error()})
		return
	}
	s.metrics.IncPanelCreated()

	c.JSON(http.StatusOK, gin.H{
		"id":     p.ID,
		"status": p.Info().Status,
		"wsUrl":  "/panels/" + p.ID + "/ws",
	})
}

func (s *Server) handleListPanels(c *gin.Context) {
	c.JSON(http.StatusOK, s.panels.List())
}

func (s *Server) handleGetPanel(c *gin.Context) {
	p, err := s.panels.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "INTERNAL_ERROR", "message": "panel not found"})
		return
	}
	c.JSON(http.StatusOK, p.Info())
}

func (s *Server) handleGetState(c *gin.Context) {
	p, err := s.panels.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "INTERNAL_ERROR", "message": "panel not found"})
		return
	}
	c.JSON(http.StatusOK, p.State.Snapshot())
}

func (s *Server) handleDestroyPanel(c *gin.Context) {
	id := c.Param("id")
	if err := s.panels.DestroyPanel(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "INTERNAL_ERROR", "message": err.Error()})
		return
	}
	s.metrics.IncPanelDestroyed()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTrigger(c *gin.Context) {
	id, tool := c.Param("id"), c.Param("tool")

	var args map[string]any
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "INVALID_HANDLER", "message": err.Error()})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), panelmgr.DefaultHandlerTimeout+5*time.Second)
	defer cancel()

	var positional []any
	if args != nil {
		positional = []any{args}
	}
	result, err := s.panels.Trigger(ctx, id, tool, positional)
	if err == panelmgr.ErrPanelNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "INTERNAL_ERROR", "message": "panel not found"})
		return
	}
	if err == panelmgr.ErrToolNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "METHOD_NOT_FOUND", "message": "tool not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": err.Error()})
		return
	}

	if result.Error != nil {
		s.metrics.IncInvocationFailed(result.Error.Kind.String())
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Kind.String(), "message": result.Error.Message})
		return
	}
	s.metrics.IncInvocationSucceeded()
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleWS(c *gin.Context) {
	s.ServeWS(c.Writer, c.Request, c.Param("id"))
}

// handleSnapshot writes a point-in-time, write-only panel state blob to
// S3, per SPEC_FULL.md §5. Not resumable: the runtime never reads this
// back (Non-goals retained).
func (s *Server) handleSnapshot(c *gin.Context) {
	if s.snapshots == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "INTERNAL_ERROR", "message": "snapshot export not configured"})
		return
	}

	id := c.Param("id")
	p, err := s.panels.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "INTERNAL_ERROR", "message": "panel not found"})
		return
	}

	info := p.Info()
	doc := snapshot.Document{
		PanelID:   p.ID,
		Kind:      info.Kind,
		Status:    string(info.Status),
		State:     p.State.Snapshot(),
		Timestamp: time.Now(),
	}

	key, err := s.snapshots.Export(c.Request.Context(), doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

// renderExposition hand-renders Prometheus text exposition. No
// client_golang dependency exists anywhere else in the pack, so pulling
// it in for this alone would be the one dependency the whole stack
// gains nothing else from; the format itself is simple enough to emit
// directly, per SPEC_FULL.md §3.1.
func renderExposition(s metrics.Snapshot) string {
	var b strings.Builder
	line := func(name string, value float64) {
		b.WriteString(name)
		b.WriteString(" ")
		b.WriteString(formatFloat(value))
		b.WriteString("\n")
	}
	line("panelrund_panels_created_total", float64(s.PanelsCreated))
	line("panelrund_panels_destroyed_total", float64(s.PanelsDestroyed))
	line("panelrund_panels_errored_total", float64(s.PanelsErrored))
	line("panelrund_invocations_started_total", float64(s.InvocationsStarted))
	line("panelrund_invocations_succeeded_total", float64(s.InvocationsSucceeded))
	line("panelrund_invocations_failed_total", float64(s.InvocationsFailed))
	line("panelrund_invocations_suspended_total", float64(s.InvocationsSuspended))
	for kind, n := range s.ErrorsByKind {
		b.WriteString("panelrund_invocation_errors_total{kind=\"")
		b.WriteString(kind)
		b.WriteString("\"} ")
		b.WriteString(formatFloat(float64(n)))
		b.WriteString("\n")
	}
	line("panelrund_suspensions_opened_total", float64(s.SuspensionsOpened))
	line("panelrund_suspensions_resolved_total", float64(s.SuspensionsResolved))
	line("panelrund_suspensions_timed_out_total", float64(s.SuspensionsTimedOut))
	line("panelrund_suspensions_cancelled_total", float64(s.SuspensionsCancelled))
	line("panelrund_extension_calls_success_total", float64(s.ExtensionCallSuccess))
	line("panelrund_extension_calls_failure_total", float64(s.ExtensionCallFailure))
	line("panelrund_sandbox_active_instances", float64(s.SandboxActiveInstances))
	line("panelrund_sandbox_available_instances", float64(s.SandboxAvailableInstances))
	line("panelrund_sandbox_cache_hit_rate", s.SandboxCacheHitRate)
	line("panelrund_sandbox_total_executions", float64(s.SandboxTotalExecutions))
	line("panelrund_ws_clients_connected_total", float64(s.WSClientsConnected))
	line("panelrund_ws_messages_sent_total", float64(s.WSMessagesSent))
	line("panelrund_ws_messages_dropped_total", float64(s.WSMessagesDropped))
	return b.String()
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
