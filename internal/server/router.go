package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/procman/internal/auth"
	"github.com/loykin/procman/internal/metrics"
	"github.com/loykin/procman/internal/store"
	"github.com/loykin/procman/internal/supervisor"
)

// Router exposes the supervisor over HTTP. Endpoints, relative to
// basePath (default "/api"):
//
//	GET    /processes              list all processes
//	POST   /processes              start a process (StartRequest JSON)
//	DELETE /processes?all=true     clear processes
//	GET    /processes/:name        reconciled status for one process
//	DELETE /processes/:name        delete a process
//	PUT    /processes/:name/stop   stop a process
//	PUT    /processes/:name/restart restart a process
//	GET    /processes/:name/logs   logs, query: lines=<n>, rotated=<bool>
//	PUT    /processes/:name/rotate rotate the live log file
//
// All routes require a bearer token when an auth service is set.
type Router struct {
	sup      *supervisor.Supervisor
	auth     *auth.Service
	basePath string
}

// ApiResponse is the uniform envelope for all endpoints.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func success(data any) ApiResponse   { return ApiResponse{Success: true, Data: data} }
func failure(msg string) ApiResponse { return ApiResponse{Success: false, Error: msg} }

// StartRequest is the POST /processes body.
type StartRequest struct {
	Name       string            `json:"name" binding:"required"`
	Command    string            `json:"command" binding:"required"`
	Args       []string          `json:"args"`
	EnvVars    map[string]string `json:"env_vars"`
	WorkingDir string            `json:"working_dir"`
	LogDir     string            `json:"log_dir"`
}

// NewRouter constructs a Router. authSvc may be nil, which disables
// authentication (used by tests and local-only setups).
func NewRouter(sup *supervisor.Supervisor, authSvc *auth.Service, basePath string) *Router {
	return &Router{sup: sup, auth: authSvc, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	if r.auth != nil {
		group.Use(auth.Middleware(r.auth))
	}
	group.GET("/processes", r.handleList)
	group.POST("/processes", r.handleStart)
	group.DELETE("/processes", r.handleClear)
	group.GET("/processes/:name", r.handleStatus)
	group.DELETE("/processes/:name", r.handleDelete)
	group.PUT("/processes/:name/stop", r.handleStop)
	group.PUT("/processes/:name/restart", r.handleRestart)
	group.GET("/processes/:name/logs", r.handleLogs)
	group.PUT("/processes/:name/rotate", r.handleRotate)
	return g
}

// NewServer wraps the router in an http.Server with sane timeouts.
// When serveMetrics is true, /metrics is exposed outside the base path
// and outside auth.
func NewServer(addr string, rt *Router, serveMetrics bool) *http.Server {
	mux := http.NewServeMux()
	if serveMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}
	mux.Handle("/", rt.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- handlers ---

func (r *Router) handleList(c *gin.Context) {
	records, err := r.sup.ListProcesses(c.Request.Context())
	if err != nil {
		r.fail(c, err, "list processes")
		return
	}
	c.JSON(http.StatusOK, success(records))
}

func (r *Router) handleStart(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failure("invalid JSON: "+err.Error()))
		return
	}
	if !isSafeName(req.Name) {
		c.JSON(http.StatusBadRequest, failure("invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"))
		return
	}
	rec, err := r.sup.StartProcess(c.Request.Context(), supervisor.Spec{
		Name:       req.Name,
		Command:    req.Command,
		Args:       req.Args,
		Env:        req.EnvVars,
		WorkingDir: req.WorkingDir,
		LogDir:     req.LogDir,
	})
	if err != nil {
		r.fail(c, err, "start process")
		return
	}
	c.JSON(http.StatusOK, success(rec))
}

func (r *Router) handleClear(c *gin.Context) {
	all := c.Query("all") == "true" || c.Query("all") == "1"
	result, err := r.sup.ClearProcesses(c.Request.Context(), all)
	if err != nil {
		r.fail(c, err, "clear processes")
		return
	}
	c.JSON(http.StatusOK, success(result))
}

func (r *Router) handleStatus(c *gin.Context) {
	rec, err := r.sup.GetProcessStatus(c.Request.Context(), c.Param("name"))
	if err != nil {
		r.fail(c, err, "get process status")
		return
	}
	c.JSON(http.StatusOK, success(rec))
}

func (r *Router) handleDelete(c *gin.Context) {
	name := c.Param("name")
	if err := r.sup.DeleteProcess(c.Request.Context(), name); err != nil {
		r.fail(c, err, "delete process")
		return
	}
	c.JSON(http.StatusOK, success("process '"+name+"' deleted"))
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Param("name")
	if err := r.sup.StopProcess(c.Request.Context(), name); err != nil {
		r.fail(c, err, "stop process")
		return
	}
	c.JSON(http.StatusOK, success("process '"+name+"' stopped"))
}

func (r *Router) handleRestart(c *gin.Context) {
	rec, err := r.sup.RestartProcess(c.Request.Context(), c.Param("name"))
	if err != nil {
		r.fail(c, err, "restart process")
		return
	}
	c.JSON(http.StatusOK, success(rec))
}

func (r *Router) handleLogs(c *gin.Context) {
	name := c.Param("name")
	if c.Query("rotated") == "true" || c.Query("rotated") == "1" {
		files, err := r.sup.GetRotatedLogs(c.Request.Context(), name)
		if err != nil {
			r.fail(c, err, "get rotated logs")
			return
		}
		c.JSON(http.StatusOK, success(files))
		return
	}
	lines := 0
	if v := c.Query("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, failure("invalid lines parameter"))
			return
		}
		lines = n
	}
	logs, err := r.sup.GetProcessLogs(c.Request.Context(), name, lines)
	if err != nil {
		r.fail(c, err, "get process logs")
		return
	}
	c.JSON(http.StatusOK, success(logs))
}

func (r *Router) handleRotate(c *gin.Context) {
	name := c.Param("name")
	if err := r.sup.RotateProcessLogs(c.Request.Context(), name); err != nil {
		r.fail(c, err, "rotate process logs")
		return
	}
	c.JSON(http.StatusOK, success("logs rotated for process '"+name+"'"))
}

// fail maps domain errors onto HTTP statuses: missing records are 404,
// name collisions 409, everything else a generic 500 with the detail in
// the daemon log only.
func (r *Router) fail(c *gin.Context, err error, op string) {
	var nf *store.NotFoundError
	var exists *store.AlreadyExistsError
	switch {
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, failure(nf.Error()))
	case errors.As(err, &exists):
		c.JSON(http.StatusConflict, failure(exists.Error()))
	default:
		slog.Error(op+" failed", "error", err)
		c.JSON(http.StatusInternalServerError, failure(op+" failed"))
	}
}
