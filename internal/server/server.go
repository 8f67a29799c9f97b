// Package server exposes a workbook over HTTP.
//
// Every request is turned into a command for the workbook's Loop, so
// handlers running on many goroutines never touch the engine at the same
// time. Routes live under /api/v1:
//
//	GET    /values/:ref            read (?raw=1 skips number formats, ?period=n)
//	POST   /values/:ref            write {"value": scalar or 2-D array}
//	POST   /formulas/:ref          install {"formula": "=A1*2"}
//	GET    /state                  the entered values
//	PUT    /state                  restore entered values
//	POST   /reset                  rebuild from the description
//	GET    /diagnostics            build errors, warnings, calculation errors
//	GET    /snapshots              saved snapshots, oldest first
//	                               (?where=Sheet!A1>=2 repeatable, ?order=newest, ?limit=n)
//	POST   /snapshots              save the current state
//	DELETE /snapshots              drop every saved snapshot
//	POST   /snapshots/:id/restore  restore a saved snapshot
//
// Snapshot routes answer 501 when no store is configured.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roach88/gridcalc/internal/engine"
	"github.com/roach88/gridcalc/internal/facade"
	"github.com/roach88/gridcalc/internal/queryir"
	"github.com/roach88/gridcalc/internal/store"
)

// APIVersion prefixes every route.
const APIVersion = "v1"

// errNoStore is answered by snapshot routes when no store is configured.
var errNoStore = errors.New("no snapshot store configured")

// Server handles HTTP requests against one workbook loop.
type Server struct {
	loop   *Loop
	store  store.Store
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the snapshot routes.
func WithStore(s store.Store) Option {
	return func(srv *Server) {
		srv.store = s
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) {
		srv.logger = l
	}
}

// New creates a server in front of loop.
func New(loop *Loop, opts ...Option) *Server {
	s := &Server{loop: loop, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine serving the API.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/" + APIVersion)
	api.GET("/values/:ref", s.getValue)
	api.POST("/values/:ref", s.setValue)
	api.POST("/formulas/:ref", s.setFormula)
	api.GET("/state", s.getState)
	api.PUT("/state", s.setState)
	api.POST("/reset", s.reset)
	api.GET("/diagnostics", s.diagnostics)
	api.GET("/snapshots", s.listSnapshots)
	api.POST("/snapshots", s.saveSnapshot)
	api.DELETE("/snapshots", s.deleteSnapshots)
	api.POST("/snapshots/:id/restore", s.restoreSnapshot)

	router.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "health")
	})

	return router
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		return srv.Shutdown(context.Background())
	}
}

type setValueRequest struct {
	Value any `json:"value"`
}

type setFormulaRequest struct {
	Formula string `json:"formula" binding:"required"`
}

type valueResponse struct {
	Ref   string `json:"ref"`
	Value any    `json:"value"`
}

type diagnosticsResponse struct {
	BuildErrors       []engine.Diagnostic `json:"buildErrors"`
	Warnings          []engine.Diagnostic `json:"warnings"`
	CalculationErrors []engine.Diagnostic `json:"calculationErrors"`
	LastPass          engine.PassStats    `json:"lastPass"`
}

func (s *Server) getValue(c *gin.Context) {
	ref := c.Param("ref")
	raw := c.Query("raw") == "1" || c.Query("raw") == "true"
	period := -1
	if p := c.Query("period"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be an integer"})
			return
		}
		period = n
	}

	v, err := call(c.Request.Context(), s.loop, func(_ context.Context, wb *facade.Workbook) (any, error) {
		switch {
		case period >= 0:
			return wb.GetPeriodValue(ref, period)
		case raw:
			return wb.GetRawValue(ref)
		default:
			return wb.GetValue(ref)
		}
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, valueResponse{Ref: ref, Value: v})
}

func (s *Server) setValue(c *gin.Context) {
	ref := c.Param("ref")
	var req setValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := call(c.Request.Context(), s.loop, func(ctx context.Context, wb *facade.Workbook) (any, error) {
		if err := wb.SetValue(ctx, ref, toGrid(req.Value)); err != nil {
			return nil, err
		}
		return wb.GetValue(ref)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, valueResponse{Ref: ref, Value: v})
}

func (s *Server) setFormula(c *gin.Context) {
	ref := c.Param("ref")
	var req setFormulaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := call(c.Request.Context(), s.loop, func(ctx context.Context, wb *facade.Workbook) (any, error) {
		if err := wb.SetFormula(ctx, ref, req.Formula); err != nil {
			return nil, err
		}
		return wb.GetValue(ref)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, valueResponse{Ref: ref, Value: v})
}

func (s *Server) getState(c *gin.Context) {
	state, err := call(c.Request.Context(), s.loop, func(_ context.Context, wb *facade.Workbook) (facade.State, error) {
		return wb.GetState(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) setState(c *gin.Context) {
	var state facade.State
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := call(c.Request.Context(), s.loop, func(ctx context.Context, wb *facade.Workbook) (any, error) {
		return nil, wb.SetState(ctx, state)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) reset(c *gin.Context) {
	_, err := call(c.Request.Context(), s.loop, func(ctx context.Context, wb *facade.Workbook) (any, error) {
		return nil, wb.Reset(ctx)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) diagnostics(c *gin.Context) {
	resp, err := call(c.Request.Context(), s.loop, func(_ context.Context, wb *facade.Workbook) (diagnosticsResponse, error) {
		return diagnosticsResponse{
			BuildErrors:       nonNil(wb.BuildErrors()),
			Warnings:          nonNil(wb.Warnings()),
			CalculationErrors: nonNil(wb.CalculationErrors()),
			LastPass:          wb.LastPass(),
		}, nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listSnapshots(c *gin.Context) {
	if s.store == nil {
		s.fail(c, errNoStore)
		return
	}
	name, err := call(c.Request.Context(), s.loop, func(_ context.Context, wb *facade.Workbook) (string, error) {
		return wb.Name(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	q, err := snapshotQuery(name, c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snaps, err := s.store.Find(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snaps)
}

// snapshotQuery reads the search parameters of GET /snapshots.
func snapshotQuery(name string, c *gin.Context) (queryir.Select, error) {
	q := queryir.Select{Workbook: name}
	switch c.Query("order") {
	case "", "oldest":
	case "newest":
		q.Order = queryir.NewestFirst
	default:
		return q, errors.New("order must be oldest or newest")
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("limit must be an integer")
		}
		q.Limit = n
	}
	var preds []queryir.Predicate
	for _, w := range c.QueryArray("where") {
		p, err := queryir.ParsePredicate(w)
		if err != nil {
			return q, err
		}
		preds = append(preds, p)
	}
	if len(preds) > 0 {
		q.Filter = queryir.And{Predicates: preds}
	}
	return q, queryir.Validate(q)
}

func (s *Server) saveSnapshot(c *gin.Context) {
	if s.store == nil {
		s.fail(c, errNoStore)
		return
	}
	snap, err := call(c.Request.Context(), s.loop, func(_ context.Context, wb *facade.Workbook) (store.Snapshot, error) {
		return store.Capture(wb)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	saved, inserted, err := s.store.Save(c.Request.Context(), snap)
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusCreated
	if !inserted {
		status = http.StatusOK
	}
	c.JSON(status, saved)
}

func (s *Server) deleteSnapshots(c *gin.Context) {
	if s.store == nil {
		s.fail(c, errNoStore)
		return
	}
	name, err := call(c.Request.Context(), s.loop, func(_ context.Context, wb *facade.Workbook) (string, error) {
		return wb.Name(), nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	n, err := s.store.Delete(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) restoreSnapshot(c *gin.Context) {
	if s.store == nil {
		s.fail(c, errNoStore)
		return
	}
	snap, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	force := c.Query("force") == "1" || c.Query("force") == "true"
	_, err = call(c.Request.Context(), s.loop, func(ctx context.Context, wb *facade.Workbook) (any, error) {
		if snap.Workbook != wb.Name() {
			return nil, store.ErrWorkbookChanged
		}
		return nil, store.Restore(ctx, wb, snap, force)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps an error to a status code and writes it.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case engine.IsBadAddress(err), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, facade.ErrShape), errors.Is(err, facade.ErrPeriod):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrWorkbookChanged):
		status = http.StatusConflict
	case errors.Is(err, errNoStore):
		status = http.StatusNotImplemented
	case errors.Is(err, ErrStopped):
		status = http.StatusServiceUnavailable
	case engine.IsCancelled(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// toGrid turns decoded JSON arrays into the [][]any the facade expects.
// A flat array is one row.
func toGrid(v any) any {
	rows, ok := v.([]any)
	if !ok {
		return v
	}
	grid := make([][]any, 0, len(rows))
	for _, r := range rows {
		if cells, ok := r.([]any); ok {
			grid = append(grid, cells)
		} else {
			return [][]any{rows}
		}
	}
	return grid
}

func nonNil(d []engine.Diagnostic) []engine.Diagnostic {
	if d == nil {
		return []engine.Diagnostic{}
	}
	return d
}
