package schedule

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gogpu/maptile/tcs"
)

type fakeResource struct{ n int }

func TestRunFrameRunsStagesInOrder(t *testing.T) {
	world := tcs.NewWorld()
	s := New()

	var order []string
	record := func(name string) SystemContainer {
		return SystemContainer{Name: name, Run: func(*tcs.World) error {
			order = append(order, name)
			return nil
		}}
	}
	s.AddSystem(Cleanup, record("cleanup"))
	s.AddSystem(Extract, record("extract"))
	s.AddSystem(Render, record("render"))

	if err := s.RunFrame(world); err != nil {
		t.Fatalf("RunFrame() error = %v", err)
	}
	want := []string{"extract", "render", "cleanup"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunFrameSkipsSystemMissingResource(t *testing.T) {
	world := tcs.NewWorld()
	s := New()

	ran := false
	s.AddSystem(Extract, SystemContainer{
		Name:     "needs-fake-resource",
		Requires: []reflect.Type{tcs.TypeOf[fakeResource]()},
		Run: func(*tcs.World) error {
			ran = true
			return nil
		},
	})

	if err := s.RunFrame(world); err != nil {
		t.Fatalf("RunFrame() error = %v", err)
	}
	if ran {
		t.Fatal("expected the system to be skipped, not run")
	}
}

func TestRunFrameRunsSystemWhenResourcePresent(t *testing.T) {
	world := tcs.NewWorld()
	tcs.InsertResource(world.Resources, fakeResource{n: 1})
	s := New()

	ran := false
	s.AddSystem(Extract, SystemContainer{
		Name:     "needs-fake-resource",
		Requires: []reflect.Type{tcs.TypeOf[fakeResource]()},
		Run: func(*tcs.World) error {
			ran = true
			return nil
		},
	})

	if err := s.RunFrame(world); err != nil {
		t.Fatalf("RunFrame() error = %v", err)
	}
	if !ran {
		t.Fatal("expected the system to run once its resource is present")
	}
}

func TestRunFrameStopsOnSystemError(t *testing.T) {
	world := tcs.NewWorld()
	s := New()

	wantErr := errors.New("boom")
	s.AddSystem(Extract, SystemContainer{Name: "failing", Run: func(*tcs.World) error { return wantErr }})

	err := s.RunFrame(world)
	if err == nil {
		t.Fatal("expected RunFrame to propagate the system error")
	}
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("error = %v, want *RunError", err)
	}
	if runErr.System != "failing" || !errors.Is(err, wantErr) {
		t.Fatalf("RunError = %+v", runErr)
	}
}
