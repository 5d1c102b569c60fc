// Package server exposes workbooks over a JSON HTTP API. every request loads
// the workbook from the store, applies the edit and evaluates on demand.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.alis.build/alog"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
	"github.com/vogtb/gridcalc/packages/store"
)

const ApiVersion = "v1"

// Store is the workbook persistence the server needs
type Store interface {
	Save(ctx context.Context, id string, wb *spreadsheet.Workbook) error
	Load(ctx context.Context, id string) (*spreadsheet.Workbook, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// Options configures a Server
type Options struct {
	// DefaultRows and DefaultColumns size sheets created without explicit
	// dimensions
	DefaultRows    int
	DefaultColumns int
}

// Server owns the HTTP handlers. edits of the same workbook are serialized,
// different workbooks proceed in parallel.
type Server struct {
	store     Store
	evaluator *spreadsheet.Evaluator
	options   Options
	locks     sync.Map // workbook id -> *sync.Mutex
}

func New(store Store, evaluator *spreadsheet.Evaluator, options Options) *Server {
	return &Server{
		store:     store,
		evaluator: evaluator,
		options:   options,
	}
}

// lock acquires the mutex of a workbook and returns its release
func (s *Server) lock(id string) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	api := router.Group("/api/" + ApiVersion)
	api.GET("/workbooks", s.ListWorkbooksAction)
	api.POST("/workbooks", s.CreateWorkbookAction)
	api.GET("/workbooks/:workbook_id", s.GetWorkbookAction)
	api.DELETE("/workbooks/:workbook_id", s.DeleteWorkbookAction)
	api.POST("/workbooks/:workbook_id/eval", s.EvalAction)

	api.POST("/workbooks/:workbook_id/sheets", s.AddSheetAction)
	api.DELETE("/workbooks/:workbook_id/sheets/:sheet", s.RemoveSheetAction)
	api.GET("/workbooks/:workbook_id/sheets/:sheet/render", s.RenderAction)
	api.GET("/workbooks/:workbook_id/sheets/:sheet/stats", s.StatsAction)

	api.GET("/workbooks/:workbook_id/sheets/:sheet/cells/:cell", s.GetCellAction)
	api.PUT("/workbooks/:workbook_id/sheets/:sheet/cells/:cell", s.SetCellAction)
	api.DELETE("/workbooks/:workbook_id/sheets/:sheet/cells/:cell", s.ClearCellAction)

	router.GET("/healthcheck", func(c *gin.Context) {
		c.String(http.StatusOK, "health")
	})

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		alog.Infof(ctx, "listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	alog.Infof(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ctx := c.Request.Context()
		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			alog.Errorf(ctx, "%s %s %d %s %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start), c.Errors.String())
		case status >= http.StatusBadRequest:
			alog.Warnf(ctx, "%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		default:
			alog.Debugf(ctx, "%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		}
	}
}

// statusOf maps errors to HTTP statuses
func statusOf(err error) int {
	if errors.Is(err, store.ErrWorkbookNotFound) {
		return http.StatusNotFound
	}
	switch spreadsheet.CodeOf(err) {
	case spreadsheet.InvalidArgument:
		return http.StatusBadRequest
	case spreadsheet.NotFound:
		return http.StatusNotFound
	case spreadsheet.AlreadyExists:
		return http.StatusConflict
	case spreadsheet.FailedPrecondition:
		return http.StatusPreconditionFailed
	case spreadsheet.OutOfRange:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
