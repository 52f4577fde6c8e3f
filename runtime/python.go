package runtime

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/gatewerk/mcpgate/bridge"
	"github.com/gatewerk/mcpgate/config"
)

type pythonRuntime struct {
	log *zap.SugaredLogger
}

func (r *pythonRuntime) Name() string { return "python" }

func (r *pythonRuntime) CheckToolchain(ctx context.Context) error {
	return probe(ctx, r.log, r.Name(), "python3", "--version")
}

// Start launches the server. When the server spec declares a virtualenv its
// bin directory is put at the front of PATH, so a bare "python" command
// resolves into the venv.
func (r *pythonRuntime) Start(spec config.ServerSpec, dir string, base bridge.Config) (*bridge.Bridge, error) {
	if py := spec.RuntimeConfig.Python; py != nil && py.VenvPath != "" {
		venv := py.VenvPath
		if !filepath.IsAbs(venv) {
			venv = filepath.Join(dir, venv)
		}
		spec.Env = withPathPrefix(spec.Env, filepath.Join(venv, "bin"))
		r.log.Debugw("using virtualenv", "Venv", venv)
	}
	return launch(spec, dir, base)
}

// withPathPrefix returns a copy of env with dir prepended to PATH, falling
// back to the ambient PATH when env does not set one.
func withPathPrefix(env map[string]string, dir string) map[string]string {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	path, ok := out["PATH"]
	if !ok {
		path = os.Getenv("PATH")
	}
	if path == "" {
		out["PATH"] = dir
	} else {
		out["PATH"] = dir + string(os.PathListSeparator) + path
	}
	return out
}
