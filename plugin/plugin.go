package plugin

import (
	"github.com/gogpu/maptile/kernel"
	"github.com/gogpu/maptile/rendergraph"
	"github.com/gogpu/maptile/schedule"
	"github.com/gogpu/maptile/tcs"
)

// Plugin wires systems, resources, and render graph nodes into a shared
// schedule, kernel, world, and draw graph. Plugins are built in
// registration order at startup; CorePlugin must be built first since
// every other canonical plugin reads the resources it inserts.
type Plugin interface {
	Build(s *schedule.Schedule, k *kernel.Kernel, w *tcs.World, g *rendergraph.Graph) error
}

// BuildAll runs Build on every plugin in order, stopping at the first
// error.
func BuildAll(plugins []Plugin, s *schedule.Schedule, k *kernel.Kernel, w *tcs.World, g *rendergraph.Graph) error {
	for _, p := range plugins {
		if err := p.Build(s, k, w, g); err != nil {
			return err
		}
	}
	return nil
}
