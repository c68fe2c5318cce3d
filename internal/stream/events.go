package stream

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/specialistvlad/wcctgo/internal/field"
)

// Event names.
const (
	EventRun   = "xi:run"
	EventStep  = "xi:step"
	EventDone  = "xi:done"
	EventError = "xi:error"
)

// Params is the EventRun payload.
type Params struct {
	N           int     `json:"n"`
	Steps       int     `json:"steps"`
	Lambda      float64 `json:"lambda"`
	M2          float64 `json:"m2"`
	Dt          float64 `json:"dt"`
	Seed        uint64  `json:"seed"`
	PhaseOffset float64 `json:"phase_offset"`
}

// ParamsFrom converts simulation parameters into a payload.
func ParamsFrom(p field.Params, phaseOffset float64) Params {
	return Params{N: p.N, Steps: p.Steps, Lambda: p.Lambda, M2: p.M2, Dt: p.Dt, Seed: p.Seed, PhaseOffset: phaseOffset}
}

// Field returns the simulation parameters of the payload.
func (p Params) Field() field.Params {
	return field.Params{N: p.N, Steps: p.Steps, Lambda: p.Lambda, M2: p.M2, Dt: p.Dt, Seed: p.Seed}
}

// Step is the EventStep payload.
type Step struct {
	RunID string  `json:"run_id"`
	T     int     `json:"t"`
	Xi    float64 `json:"xi"`
}

// Done is the EventDone payload.
type Done struct {
	RunID   string  `json:"run_id"`
	XiFinal float64 `json:"xi_final"`
	XiMean  float64 `json:"xi_mean"`
	Steps   int     `json:"steps"`
}

// jsonFloat travels NaN and the infinities as null, like the HTTP API, and
// reads null back as NaN.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = jsonFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

type stepWire struct {
	RunID string    `json:"run_id"`
	T     int       `json:"t"`
	Xi    jsonFloat `json:"xi"`
}

// MarshalJSON writes a non-finite xi as null.
func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepWire{RunID: s.RunID, T: s.T, Xi: jsonFloat(s.Xi)})
}

// UnmarshalJSON reads a null xi as NaN.
func (s *Step) UnmarshalJSON(b []byte) error {
	w := stepWire{RunID: s.RunID, T: s.T, Xi: jsonFloat(s.Xi)}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Step{RunID: w.RunID, T: w.T, Xi: float64(w.Xi)}
	return nil
}

type doneWire struct {
	RunID   string    `json:"run_id"`
	XiFinal jsonFloat `json:"xi_final"`
	XiMean  jsonFloat `json:"xi_mean"`
	Steps   int       `json:"steps"`
}

// MarshalJSON writes non-finite summaries as null.
func (d Done) MarshalJSON() ([]byte, error) {
	return json.Marshal(doneWire{RunID: d.RunID, XiFinal: jsonFloat(d.XiFinal), XiMean: jsonFloat(d.XiMean), Steps: d.Steps})
}

// UnmarshalJSON reads null summaries as NaN.
func (d *Done) UnmarshalJSON(b []byte) error {
	w := doneWire{RunID: d.RunID, XiFinal: jsonFloat(d.XiFinal), XiMean: jsonFloat(d.XiMean), Steps: d.Steps}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*d = Done{RunID: w.RunID, XiFinal: float64(w.XiFinal), XiMean: float64(w.XiMean), Steps: w.Steps}
	return nil
}

// Failure is the EventError payload.
type Failure struct {
	RunID string `json:"run_id,omitempty"`
	Error string `json:"error"`
}

// decode moves a socket.io argument, which arrives as generic JSON values,
// into v. Fields of v absent from data keep their current values.
func decode(data []any, v any) error {
	if len(data) == 0 || data[0] == nil {
		return nil
	}
	raw, err := json.Marshal(data[0])
	if err != nil {
		return fmt.Errorf("stream: re-encoding payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("stream: decoding payload: %w", err)
	}
	return nil
}
