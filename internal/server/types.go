package server

import (
	"encoding/json"
	"math"

	"github.com/specialistvlad/wcctgo/internal/field"
	"github.com/specialistvlad/wcctgo/internal/parity"
)

// number is a float64 that encodes NaN and Inf as null.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func numbers(v []float64) []number {
	if v == nil {
		return nil
	}
	out := make([]number, len(v))
	for i, x := range v {
		out[i] = number(x)
	}
	return out
}

// SolveRequest is the body of POST /solve.
type SolveRequest struct {
	N       int     `json:"N" binding:"lte=2048"`
	Steps   int     `json:"steps" binding:"gte=0,lte=100000"`
	Omega   float64 `json:"omega"`
	History bool    `json:"history"`
}

// SolveResponse is the result of POST /solve.
type SolveResponse struct {
	Parity     number   `json:"onnx_parity"`
	TruthError number   `json:"rel_to_truth"`
	Mean       number   `json:"u_mean"`
	Std        number   `json:"u_std"`
	Iterations int      `json:"iters"`
	ModelPath  string   `json:"model_path"`
	Runner     string   `json:"runner"`
	History    []number `json:"hist,omitempty"`
}

// XiRequest is the body of the /v1/xi endpoints.
type XiRequest struct {
	N           int      `json:"N" binding:"gte=1,lte=2048"`
	T           int      `json:"T" binding:"gte=1,lte=100000"`
	Lambda      float64  `json:"lam"`
	M2          float64  `json:"m2"`
	Dt          float64  `json:"dt"`
	Seed        uint64   `json:"seed"`
	PhaseOffset *float64 `json:"phase_offset"`
}

// XiResponse is the result of POST /v1/xi/step and /v1/xi/series.
type XiResponse struct {
	XiFinal number   `json:"xi_final"`
	XiMean  number   `json:"xi_mean"`
	Steps   int      `json:"steps"`
	Series  []number `json:"xis,omitempty"`
}

// GraphQuery selects the graph served by GET /v1/graph.
type GraphQuery struct {
	Omega *float64 `form:"omega"`
	DType string   `form:"dtype" binding:"omitempty,oneof=float64 float32"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewSolveResponse converts solve metrics into the response body.
func NewSolveResponse(m *parity.Metrics, runner string) SolveResponse {
	return SolveResponse{
		Parity:     number(m.Parity),
		TruthError: number(m.TruthError),
		Mean:       number(m.Mean),
		Std:        number(m.Std),
		Iterations: m.Iterations,
		ModelPath:  m.GraphPath,
		Runner:     runner,
		History:    numbers(m.History),
	}
}

// NewXiResponse converts a simulation result into the response body. The
// series is included only when requested.
func NewXiResponse(res *field.Result, series bool) XiResponse {
	resp := XiResponse{XiFinal: number(res.Final), XiMean: number(res.Mean), Steps: res.Steps}
	if series {
		resp.Series = numbers(res.Xi)
	}
	return resp
}
