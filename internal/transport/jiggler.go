package transport

import (
	"fmt"
	"strings"
)

// Jiggler modes understood by the executor.
const (
	JiggleSimple  = "simple"
	JiggleCircles = "circles"
	JiggleRandom  = "random"
)

// Jiggler limits enforced by the executor firmware.
const (
	MinJiggleDiameter = 1
	MaxJiggleDiameter = 100
	MinJiggleDelayMs  = 100
	MaxJiggleDelayMs  = 60000
)

// Jiggler configures the executor's keep-awake mouse movement.
type Jiggler struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Mode     string `json:"mode" yaml:"mode"`
	Diameter int    `json:"diameter" yaml:"diameter"`
	DelayMs  int    `json:"delayMs" yaml:"delay_ms"`
}

// DefaultJiggler returns the executor's own defaults, disabled.
func DefaultJiggler() Jiggler {
	return Jiggler{Mode: JiggleSimple, Diameter: 2, DelayMs: 2000}
}

// Normalize fills empty fields with defaults and lowercases the mode.
func (j Jiggler) Normalize() Jiggler {
	def := DefaultJiggler()
	j.Mode = strings.ToLower(strings.TrimSpace(j.Mode))
	if j.Mode == "" {
		j.Mode = def.Mode
	}
	if j.Diameter == 0 {
		j.Diameter = def.Diameter
	}
	if j.DelayMs == 0 {
		j.DelayMs = def.DelayMs
	}
	return j
}

// Validate checks an enabled jiggler against the executor limits.
func (j Jiggler) Validate() error {
	if !j.Enabled {
		return nil
	}
	switch j.Mode {
	case JiggleSimple, JiggleCircles, JiggleRandom:
	default:
		return fmt.Errorf("jiggler mode must be simple, circles or random, got %q", j.Mode)
	}
	if j.Diameter < MinJiggleDiameter || j.Diameter > MaxJiggleDiameter {
		return fmt.Errorf("jiggler diameter must be %d-%d", MinJiggleDiameter, MaxJiggleDiameter)
	}
	if j.DelayMs < MinJiggleDelayMs || j.DelayMs > MaxJiggleDelayMs {
		return fmt.Errorf("jiggler delay must be %d-%d ms", MinJiggleDelayMs, MaxJiggleDelayMs)
	}
	return nil
}
