package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/field"
	"github.com/specialistvlad/wcctgo/internal/grid"
	"github.com/specialistvlad/wcctgo/internal/hcl"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/parity"
	"github.com/specialistvlad/wcctgo/internal/plot"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleSolve handles POST /solve.
//
// Response:
//
//	200 OK: SolveResponse
//	400 Bad Request: invalid body, N < 3, negative steps, unusable omega
//	500 Internal Server Error: graph execution or artifact failure
func (s *Server) handleSolve(c *gin.Context) {
	ctx := c.Request.Context()
	logger := ctxlog.FromContext(ctx).With("handler", "solve")

	req := SolveRequest{N: s.defaults.Solver.N, Steps: s.defaults.Solver.Steps, Omega: s.defaults.Solver.Omega}
	if !bindJSON(c, &req) {
		return
	}

	start := time.Now()
	m, err := s.solver.Solve(ctx, parity.Request{N: req.N, Steps: req.Steps, Omega: req.Omega, History: req.History})
	if err != nil {
		s.metrics.ObserveSolve(s.runner, time.Since(start), 0, 0, err)
		s.fail(c, logger, err, "SOLVE_FAILED")
		return
	}
	s.metrics.ObserveSolve(s.runner, time.Since(start), m.Parity, m.TruthError, nil)

	c.JSON(http.StatusOK, NewSolveResponse(m, s.runner))
}

func (s *Server) handleXi(series bool) gin.HandlerFunc {
	mode := "step"
	if series {
		mode = "series"
	}
	return func(c *gin.Context) {
		logger := ctxlog.FromContext(c.Request.Context()).With("handler", "xi", "mode", mode)
		res, ok := s.runXi(c, logger, mode)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, NewXiResponse(res, series))
	}
}

func (s *Server) handleXiPlot(c *gin.Context) {
	logger := ctxlog.FromContext(c.Request.Context()).With("handler", "xi", "mode", "plot")
	res, ok := s.runXi(c, logger, "plot")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := plot.Xi(&buf, res.Xi); err != nil {
		s.fail(c, logger, err, "PLOT_FAILED")
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) runXi(c *gin.Context, logger *slog.Logger, mode string) (*field.Result, bool) {
	d := s.defaults.Field
	req := XiRequest{N: d.N, T: d.Steps, Lambda: d.Lambda, M2: d.M2, Dt: d.Dt, Seed: d.Seed}
	if !bindJSON(c, &req) {
		return nil, false
	}
	delta := d.PhaseOffset
	if req.PhaseOffset != nil {
		delta = *req.PhaseOffset
	}

	p := field.Params{N: req.N, Steps: req.T, Lambda: req.Lambda, M2: req.M2, Dt: req.Dt, Seed: req.Seed}
	res, err := field.Run(c.Request.Context(), p, field.WithPhaseOffset(delta))
	if err != nil {
		s.metrics.ObserveXi(mode, 0, err)
		s.fail(c, logger, err, "XI_FAILED")
		return nil, false
	}
	s.metrics.ObserveXi(mode, res.Final, nil)
	return res, true
}

// handleGraph serves the relaxation graph as HCL text, built for the omega
// query parameter or the configured default.
func (s *Server) handleGraph(c *gin.Context) {
	logger := ctxlog.FromContext(c.Request.Context()).With("handler", "graph")

	var q GraphQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		logger.Warn("Invalid query.", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	omega := s.defaults.Solver.Omega
	if q.Omega != nil {
		omega = *q.Omega
	}
	dtype := opgraph.DType(s.defaults.Solver.DType)
	if q.DType != "" {
		dtype = opgraph.DType(q.DType)
	}

	g, err := opgraph.BuildRBSOR(omega, opgraph.WithDType(dtype))
	if err != nil {
		s.fail(c, logger, err, "GRAPH_FAILED")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", hcl.EncodeGraph(g))
}

// bindJSON decodes the body over the defaults already in v. An empty body
// keeps the defaults. It writes a 400 and returns false on failure.
func bindJSON(c *gin.Context, v any) bool {
	err := c.ShouldBindJSON(v)
	if errors.Is(err, io.EOF) {
		err = binding.Validator.ValidateStruct(v)
	}
	if err != nil {
		ctxlog.FromContext(c.Request.Context()).Warn("Invalid request body.", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return false
	}
	return true
}

// fail maps domain errors to status codes.
func (s *Server) fail(c *gin.Context, logger *slog.Logger, err error, code string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, grid.ErrGridTooSmall),
		errors.Is(err, parity.ErrInvalidSteps),
		errors.Is(err, opgraph.ErrUnrepresentable),
		errors.Is(err, opgraph.ErrInvalidGraph),
		errors.Is(err, field.ErrInvalidParams),
		errors.Is(err, plot.ErrNonFinite),
		errors.Is(err, plot.ErrTooFewPoints):
		status = http.StatusBadRequest
		code = "INVALID_PARAMETERS"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		code = "CANCELED"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed.", "error", err)
	} else {
		logger.Warn("Request rejected.", "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
