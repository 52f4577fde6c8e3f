package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/gatewerk/mcpgate/bridge"
	"github.com/gatewerk/mcpgate/config"
)

type goRuntime struct {
	log *zap.SugaredLogger
}

func (r *goRuntime) Name() string { return "go" }

func (r *goRuntime) CheckToolchain(ctx context.Context) error {
	return probe(ctx, r.log, r.Name(), "go", "version")
}

func (r *goRuntime) Start(spec config.ServerSpec, dir string, base bridge.Config) (*bridge.Bridge, error) {
	return launch(spec, dir, base)
}
