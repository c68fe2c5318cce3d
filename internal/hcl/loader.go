package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/specialistvlad/wcctgo/internal/config"
	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/fsutil"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes every top-level block a configuration file may hold.
// All attributes are optional; only the ones present override the base.
type fileRoot struct {
	Server    *serverBlock    `hcl:"server,block"`
	Solver    *solverBlock    `hcl:"solver,block"`
	Field     *fieldBlock     `hcl:"field,block"`
	Artifacts *artifactsBlock `hcl:"artifacts,block"`
	Logging   *loggingBlock   `hcl:"logging,block"`
	Remain    hcl.Body        `hcl:",remain"`
}

type serverBlock struct {
	Addr            *string `hcl:"addr,optional"`
	ShutdownTimeout *string `hcl:"shutdown_timeout,optional"`
	Streaming       *bool   `hcl:"streaming,optional"`
}

type solverBlock struct {
	N       *int     `hcl:"n,optional"`
	Steps   *int     `hcl:"steps,optional"`
	Omega   *float64 `hcl:"omega,optional"`
	Epsilon *float64 `hcl:"epsilon,optional"`
	Runner  *string  `hcl:"runner,optional"`
	Workers *int     `hcl:"workers,optional"`
	DType   *string  `hcl:"dtype,optional"`
}

type fieldBlock struct {
	N           *int     `hcl:"n,optional"`
	Steps       *int     `hcl:"steps,optional"`
	Lambda      *float64 `hcl:"lambda,optional"`
	M2          *float64 `hcl:"m2,optional"`
	Dt          *float64 `hcl:"dt,optional"`
	Seed        *uint64  `hcl:"seed,optional"`
	PhaseOffset *float64 `hcl:"phase_offset,optional"`
}

type artifactsBlock struct {
	Dir *string `hcl:"dir,optional"`
}

type loggingBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Load implements config.Loader. Files are applied in sorted path order, so
// later files override earlier ones.
func (l *Loader) Load(ctx context.Context, base config.Model, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(".hcl", paths...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := base
	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if err := root.apply(&model); err != nil {
			return nil, fmt.Errorf("HCL file %s: %w", file, err)
		}
	}

	logger.Debug("HCL loading complete.", "files", len(files))
	return &model, nil
}

func (r *fileRoot) apply(m *config.Model) error {
	if b := r.Server; b != nil {
		set(&m.Server.Addr, b.Addr)
		set(&m.Server.Streaming, b.Streaming)
		if b.ShutdownTimeout != nil {
			d, err := time.ParseDuration(*b.ShutdownTimeout)
			if err != nil {
				return fmt.Errorf("%w: server.shutdown_timeout: %v", config.ErrInvalid, err)
			}
			m.Server.ShutdownTimeout = d
		}
	}
	if b := r.Solver; b != nil {
		set(&m.Solver.N, b.N)
		set(&m.Solver.Steps, b.Steps)
		set(&m.Solver.Omega, b.Omega)
		set(&m.Solver.Epsilon, b.Epsilon)
		set(&m.Solver.Runner, b.Runner)
		set(&m.Solver.Workers, b.Workers)
		set(&m.Solver.DType, b.DType)
	}
	if b := r.Field; b != nil {
		set(&m.Field.N, b.N)
		set(&m.Field.Steps, b.Steps)
		set(&m.Field.Lambda, b.Lambda)
		set(&m.Field.M2, b.M2)
		set(&m.Field.Dt, b.Dt)
		set(&m.Field.Seed, b.Seed)
		set(&m.Field.PhaseOffset, b.PhaseOffset)
	}
	if b := r.Artifacts; b != nil {
		set(&m.Artifacts.Dir, b.Dir)
	}
	if b := r.Logging; b != nil {
		set(&m.Logging.Level, b.Level)
		set(&m.Logging.Format, b.Format)
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

var _ config.Loader = (*Loader)(nil)
