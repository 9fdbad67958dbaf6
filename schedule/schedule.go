// Package schedule implements the per-frame system schedule: a strict
// sequence of stages, each an ordered list of named systems, where a
// system missing a declared resource dependency is skipped and logged
// rather than allowed to panic.
package schedule

import (
	"reflect"

	"github.com/gogpu/maptile/internal/logging"
	"github.com/gogpu/maptile/tcs"
)

// StageName identifies one of the schedule's strictly-ordered stages.
type StageName string

const (
	Extract   StageName = "Extract"
	Prepare   StageName = "Prepare"
	Queue     StageName = "Queue"
	PhaseSort StageName = "PhaseSort"
	Render    StageName = "Render"
	Cleanup   StageName = "Cleanup"
)

// StageOrder is the fixed sequence every frame runs through.
var StageOrder = []StageName{Extract, Prepare, Queue, PhaseSort, Render, Cleanup}

// SystemFunc is one unit of per-frame work operating on the shared World.
type SystemFunc func(world *tcs.World) error

// SystemContainer wraps a system with the resource types it requires.
// Before running, the schedule checks every required type is present in
// world.Resources; if one is missing, the system is skipped (logged, not
// fatal) rather than allowed to dereference a nil resource.
type SystemContainer struct {
	Name     string
	Requires []reflect.Type
	Run      SystemFunc
}

// Stage is one named list of systems run in registration order.
type Stage struct {
	Name    StageName
	Systems []SystemContainer
}

// Schedule holds the six fixed stages and runs them, in order, once per
// frame.
type Schedule struct {
	stages map[StageName]*Stage
}

// New creates a Schedule with all six stages present (possibly empty),
// so plugins can add systems to any stage without first checking it
// exists.
func New() *Schedule {
	s := &Schedule{stages: make(map[StageName]*Stage, len(StageOrder))}
	for _, name := range StageOrder {
		s.stages[name] = &Stage{Name: name}
	}
	return s
}

// AddSystem appends a system to the named stage, in the order plugins
// register it.
func (s *Schedule) AddSystem(stage StageName, sys SystemContainer) {
	st := s.stages[stage]
	st.Systems = append(st.Systems, sys)
}

// Stage returns the named stage for direct inspection (tests, PhaseSort
// wiring that needs to reorder within a stage).
func (s *Schedule) Stage(name StageName) *Stage {
	return s.stages[name]
}

// RunFrame executes every stage in StageOrder, and within each stage every
// system in registration order. A system whose Requires are not all
// present in world.Resources is skipped and logged; any other error
// aborts the frame.
func (s *Schedule) RunFrame(world *tcs.World) error {
	for _, name := range StageOrder {
		stage := s.stages[name]
		for _, sys := range stage.Systems {
			if missing, ok := firstMissing(sys.Requires, world.Resources); !ok {
				logging.Logger().Warn("schedule: skipping system with missing resource",
					"stage", string(name), "system", sys.Name, "missing", missing.String())
				continue
			}
			if err := sys.Run(world); err != nil {
				return &RunError{Stage: name, System: sys.Name, Cause: err}
			}
		}
	}
	return nil
}

func firstMissing(requires []reflect.Type, res *tcs.Resources) (reflect.Type, bool) {
	for _, t := range requires {
		if !res.HasType(t) {
			return t, false
		}
	}
	return nil, true
}

// RunError reports which stage and system a frame aborted in.
type RunError struct {
	Stage  StageName
	System string
	Cause  error
}

func (e *RunError) Error() string {
	return "schedule: stage " + string(e.Stage) + " system " + e.System + ": " + e.Cause.Error()
}

func (e *RunError) Unwrap() error { return e.Cause }
