package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/specialistvlad/wcctgo/internal/grid"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// Model is the unified representation of the service configuration.
type Model struct {
	Server    Server
	Solver    Solver
	Field     Field
	Artifacts Artifacts
	Logging   Logging
}

// Server configures the HTTP API.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	// Streaming mounts the socket.io endpoint next to the REST API.
	Streaming bool
}

// Solver holds the defaults of a solve request and the runner selection.
type Solver struct {
	N       int
	Steps   int
	Omega   float64
	Epsilon float64
	// Runner is "interp" or "gorgonia".
	Runner  string
	Workers int
	// DType is the graph element type, "float64" or "float32".
	DType string
}

// Field holds the defaults of a field simulation request.
type Field struct {
	N           int
	Steps       int
	Lambda      float64
	M2          float64
	Dt          float64
	Seed        uint64
	PhaseOffset float64
}

// Artifacts configures where built graphs are persisted. An empty Dir
// disables persistence.
type Artifacts struct {
	Dir string
}

// Logging configures the process logger.
type Logging struct {
	Level  string
	Format string
}

// Default returns the built-in configuration.
func Default() Model {
	return Model{
		Server: Server{
			Addr:            ":8000",
			ShutdownTimeout: 5 * time.Second,
			Streaming:       true,
		},
		Solver: Solver{
			N:       64,
			Steps:   400,
			Omega:   1.9,
			Epsilon: 1e-12,
			Runner:  "interp",
			Workers: 1,
			DType:   "float64",
		},
		Field: Field{
			N:           96,
			Steps:       120,
			Lambda:      0.2,
			M2:          0,
			Dt:          0.1,
			Seed:        42,
			PhaseOffset: 1e-9,
		},
		Artifacts: Artifacts{Dir: "artifacts"},
		Logging:   Logging{Level: "info", Format: "text"},
	}
}

// Validate checks values that no component can work with.
func (m Model) Validate() error {
	switch m.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalid, m.Logging.Level)
	}
	switch m.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalid, m.Logging.Format)
	}
	switch m.Solver.Runner {
	case "interp", "gorgonia":
	default:
		return fmt.Errorf("%w: solver runner %q", ErrInvalid, m.Solver.Runner)
	}
	switch m.Solver.DType {
	case "float64", "float32":
	default:
		return fmt.Errorf("%w: solver dtype %q", ErrInvalid, m.Solver.DType)
	}
	if m.Solver.N < grid.MinInteriorSize {
		return fmt.Errorf("%w: solver n must be at least %d, got %d", ErrInvalid, grid.MinInteriorSize, m.Solver.N)
	}
	if m.Solver.Steps < 0 {
		return fmt.Errorf("%w: solver steps must not be negative, got %d", ErrInvalid, m.Solver.Steps)
	}
	if math.IsNaN(m.Solver.Omega) || math.IsInf(m.Solver.Omega, 0) {
		return fmt.Errorf("%w: solver omega %v", ErrInvalid, m.Solver.Omega)
	}
	if m.Solver.Workers < 1 {
		return fmt.Errorf("%w: solver workers must be at least 1, got %d", ErrInvalid, m.Solver.Workers)
	}
	if !(m.Solver.Epsilon > 0) || math.IsInf(m.Solver.Epsilon, 0) {
		return fmt.Errorf("%w: solver epsilon must be positive, got %v", ErrInvalid, m.Solver.Epsilon)
	}
	if m.Field.N < 1 || m.Field.Steps < 1 {
		return fmt.Errorf("%w: field n and steps must be positive, got %d and %d", ErrInvalid, m.Field.N, m.Field.Steps)
	}
	for name, v := range map[string]float64{"lambda": m.Field.Lambda, "m2": m.Field.M2, "dt": m.Field.Dt} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: field %s %v", ErrInvalid, name, v)
		}
	}
	if math.IsNaN(m.Field.PhaseOffset) || math.IsInf(m.Field.PhaseOffset, 0) {
		return fmt.Errorf("%w: field phase offset %v", ErrInvalid, m.Field.PhaseOffset)
	}
	if m.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: negative shutdown timeout", ErrInvalid)
	}
	return nil
}
