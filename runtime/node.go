package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/gatewerk/mcpgate/bridge"
	"github.com/gatewerk/mcpgate/config"
)

type nodeRuntime struct {
	log *zap.SugaredLogger
}

func (r *nodeRuntime) Name() string { return "node" }

func (r *nodeRuntime) CheckToolchain(ctx context.Context) error {
	return probe(ctx, r.log, r.Name(), "node", "--version")
}

func (r *nodeRuntime) Start(spec config.ServerSpec, dir string, base bridge.Config) (*bridge.Bridge, error) {
	return launch(spec, dir, base)
}
