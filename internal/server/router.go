package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/gslauncher/internal/console"
	"github.com/loykin/gslauncher/internal/metrics"
	"github.com/loykin/gslauncher/internal/script"
	"github.com/loykin/gslauncher/internal/store"
	"github.com/loykin/gslauncher/internal/supervisor"
)

// Store is the server configuration storage the router works on.
type Store interface {
	LoadAll() ([]store.Record, error)
	Get(id string) (store.Record, error)
	Add(n store.NewRecord) (store.Record, error)
	Update(id string, p store.Patch) (store.Record, error)
	Remove(id string) error
}

// Router provides the HTTP API for configured game servers.
// Endpoints, relative to basePath:
//
//	GET    /status                    daemon liveness
//	GET    /servers                   list configs with status
//	POST   /servers                   add a config
//	GET    /servers/:id               one config with status
//	PUT    /servers/:id               patch a config
//	DELETE /servers/:id               remove a stopped server
//	POST   /servers/:id/start
//	POST   /servers/:id/stop          query: command=..., timeout=15s
//	POST   /servers/:id/restart       asynchronous, 202
//	POST   /servers/:id/command       body: {"command": "..."}
//	GET    /servers/:id/console       text/plain
//	GET    /servers/:id/status
//	GET    /servers/:id/stream        server-sent events
//
// The metrics endpoint, when enabled, is mounted at its own path outside
// basePath.
type Router struct {
	sup      *supervisor.Supervisor
	store    Store
	basePath string

	hub         *console.Hub
	output      supervisor.OutputFunc
	resources   *metrics.ResourceCollector
	log         *slog.Logger
	stopCommand string
	stopTimeout time.Duration
	metricsPath string
	metrics     http.Handler
	keepAlive   time.Duration
	startedAt   time.Time

	bgMu     sync.Mutex
	draining bool
	bg       sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithHub enables console streaming. Unless WithOutput is given, captured
// lines are published to the hub.
func WithHub(h *console.Hub) Option { return func(r *Router) { r.hub = h } }

// WithOutput sets the output callback handed to every launch.
func WithOutput(fn supervisor.OutputFunc) Option { return func(r *Router) { r.output = fn } }

// WithResources adds the latest resource sample to server status.
func WithResources(c *metrics.ResourceCollector) Option {
	return func(r *Router) { r.resources = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithStopDefaults sets the graceful command and grace period of the stop
// endpoint.
func WithStopDefaults(command string, timeout time.Duration) Option {
	return func(r *Router) {
		r.stopCommand = command
		r.stopTimeout = timeout
	}
}

// WithMetrics mounts h at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(r *Router) {
		r.metricsPath = path
		r.metrics = h
	}
}

// NewRouter constructs a Router. Example basePath: "/api" results in
// /api/servers, /api/status and so on.
func NewRouter(sup *supervisor.Supervisor, st Store, basePath string, opts ...Option) *Router {
	r := &Router{
		sup:         sup,
		store:       st,
		basePath:    sanitizeBase(basePath),
		log:         slog.Default(),
		stopCommand: supervisor.RestartCommand,
		stopTimeout: supervisor.RestartTimeout,
		keepAlive:   15 * time.Second,
		startedAt:   time.Now(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.output == nil && r.hub != nil {
		r.output = r.hub.Publish
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.requestLog())
	if r.metrics != nil && r.metricsPath != "" {
		g.GET(sanitizeBase(r.metricsPath), gin.WrapH(r.metrics))
	}
	group := g.Group(r.basePath)
	group.GET("/status", r.handleDaemonStatus)
	group.GET("/servers", r.handleList)
	group.POST("/servers", r.handleAdd)
	group.GET("/servers/:id", r.handleGet)
	group.PUT("/servers/:id", r.handleUpdate)
	group.DELETE("/servers/:id", r.handleDelete)
	group.POST("/servers/:id/start", r.handleStart)
	group.POST("/servers/:id/stop", r.handleStop)
	group.POST("/servers/:id/restart", r.handleRestart)
	group.POST("/servers/:id/command", r.handleCommand)
	group.GET("/servers/:id/console", r.handleConsole)
	group.GET("/servers/:id/status", r.handleStatus)
	group.GET("/servers/:id/stream", r.handleStream)
	return g
}

// Wait refuses further restarts and blocks until background restarts have
// finished.
func (r *Router) Wait() {
	r.bgMu.Lock()
	r.draining = true
	r.bgMu.Unlock()
	r.bg.Wait()
}

// goBackground runs fn tracked by Wait. It reports false once Wait was called.
func (r *Router) goBackground(fn func()) bool {
	r.bgMu.Lock()
	defer r.bgMu.Unlock()
	if r.draining {
		return false
	}
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		fn()
	}()
	return true
}

// NewServer binds addr and serves the router on it in the background. The
// write timeout is left unset so console streams stay open.
func NewServer(addr string, r *Router) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("http server stopped", slog.Any("error", err))
		}
	}()
	return server, nil
}

func (r *Router) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.log.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)))
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type serverView struct {
	store.Record
	Status supervisor.Status `json:"status"`
}

type statusView struct {
	supervisor.Status
	Resources *metrics.Usage `json:"resources,omitempty"`
}

type commandReq struct {
	Command string `json:"command"`
}

// fail maps err onto a status code.
func fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, supervisor.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, store.ErrInvalid):
		code = http.StatusBadRequest
	case errors.Is(err, script.ErrScriptNotFound):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, supervisor.ErrRunning), errors.Is(err, supervisor.ErrStillRunning):
		code = http.StatusConflict
	case errors.Is(err, supervisor.ErrClosed):
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}

func (r *Router) view(rec store.Record) serverView {
	st, _ := r.sup.Status(rec.ID)
	if st.Name == "" {
		st.Name = rec.Name
	}
	return serverView{Record: rec, Status: st}
}

func (r *Router) record(c *gin.Context) (store.Record, bool) {
	rec, err := r.store.Get(c.Param("id"))
	if err != nil {
		fail(c, err)
		return store.Record{}, false
	}
	return rec, true
}

func (r *Router) handleDaemonStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"ok":      true,
		"running": len(r.sup.PIDs()),
		"uptime":  time.Since(r.startedAt).Round(time.Second).String(),
	})
}

func (r *Router) handleList(c *gin.Context) {
	recs, err := r.store.LoadAll()
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]serverView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, r.view(rec))
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleAdd(c *gin.Context) {
	var n store.NewRecord
	if err := c.ShouldBindJSON(&n); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeAbsPath(n.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid cwd: must be absolute path without traversal"})
		return
	}
	rec, err := r.store.Add(n)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r.view(rec))
}

func (r *Router) handleGet(c *gin.Context) {
	rec, ok := r.record(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, r.view(rec))
}

func (r *Router) handleUpdate(c *gin.Context) {
	var p store.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if p.WorkDir != nil && !isSafeAbsPath(*p.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid cwd: must be absolute path without traversal"})
		return
	}
	rec, err := r.store.Update(c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r.view(rec))
}

func (r *Router) handleDelete(c *gin.Context) {
	id := c.Param("id")
	if r.sup.IsRunning(id) {
		fail(c, supervisor.ErrRunning)
		return
	}
	if err := r.store.Remove(id); err != nil {
		fail(c, err)
		return
	}
	if err := r.sup.Remove(id); err != nil && !errors.Is(err, supervisor.ErrNotFound) {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStart(c *gin.Context) {
	rec, ok := r.record(c)
	if !ok {
		return
	}
	if err := r.sup.Start(rec.Launch(r.output)); err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r.view(rec))
}

func (r *Router) handleStop(c *gin.Context) {
	rec, ok := r.record(c)
	if !ok {
		return
	}
	command := c.DefaultQuery("command", r.stopCommand)
	timeout := r.stopTimeout
	if s := c.Query("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid timeout: " + err.Error()})
			return
		}
		timeout = d
	}
	stopped := r.sup.Stop(rec.ID, command, rec.StopTimeout(timeout))
	writeJSON(c, http.StatusOK, gin.H{"stopped": stopped})
}

func (r *Router) handleRestart(c *gin.Context) {
	rec, ok := r.record(c)
	if !ok {
		return
	}
	started := r.goBackground(func() {
		if err := r.sup.Restart(rec.Launch(r.output)); err != nil {
			r.log.Error("restart failed", slog.String("server_id", rec.ID), slog.Any("error", err))
		}
	})
	if !started {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "shutting down"})
		return
	}
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Command == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "command required"})
		return
	}
	if !r.sup.SendCommand(c.Param("id"), req.Command) {
		writeJSON(c, http.StatusConflict, gin.H{"delivered": false, "error": "server not running"})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"delivered": true})
}

func (r *Router) handleConsole(c *gin.Context) {
	text, ok := r.sup.Console(c.Param("id"))
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no console for server"})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

func (r *Router) handleStatus(c *gin.Context) {
	id := c.Param("id")
	st, known := r.sup.Status(id)
	if !known {
		rec, err := r.store.Get(id)
		if err != nil {
			fail(c, err)
			return
		}
		st.Name = rec.Name
	}
	v := statusView{Status: st}
	if r.resources != nil {
		if u, ok := r.resources.Latest(id); ok {
			v.Resources = &u
		}
	}
	writeJSON(c, http.StatusOK, v)
}

func (r *Router) handleStream(c *gin.Context) {
	if r.hub == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "console streaming disabled"})
		return
	}
	id := c.Param("id")
	buf, _ := strconv.Atoi(c.Query("buffer"))
	lines, cancel := r.hub.Subscribe(id, buf)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("ready", id)
	c.Writer.Flush()

	tick := time.NewTicker(r.keepAlive)
	defer tick.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			c.SSEvent("line", l.Text)
			c.Writer.Flush()
		case <-tick.C:
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
