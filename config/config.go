// Package config loads the servers document that declares every MCP server
// the gateway can front: which runtime it needs, where its source lives, how
// to build it, and how to launch it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gatewerk/mcpgate/internal/files"
)

// DefaultFileName is the servers document looked up when no path is given.
const DefaultFileName = "mcp_servers.config.json"

// Document is the top-level servers configuration.
type Document struct {
	Version string                `json:"version" yaml:"version"`
	Servers map[string]ServerSpec `json:"servers" yaml:"servers"`
}

// ServerSpec declares one logical MCP server. Name is the key the entry was
// registered under in the document; it is injected at load time and is the
// identity the working tree derives from.
type ServerSpec struct {
	Name string `json:"-" yaml:"-"`

	Runtime       string            `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Repository    string            `json:"repository,omitempty" yaml:"repository,omitempty"`
	BuildCommand  string            `json:"build_command,omitempty" yaml:"build_command,omitempty"`
	Command       string            `json:"command" yaml:"command"`
	Args          []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env           map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	RuntimeConfig RuntimeConfig     `json:"runtime_config,omitempty" yaml:"runtime_config,omitempty"`
}

// RuntimeConfig carries the per-runtime knobs. At most one member is
// meaningful for a given server.
type RuntimeConfig struct {
	Node   *NodeConfig   `json:"node,omitempty" yaml:"node,omitempty"`
	Python *PythonConfig `json:"python,omitempty" yaml:"python,omitempty"`
	Go     *GoConfig     `json:"go,omitempty" yaml:"go,omitempty"`
}

type NodeConfig struct {
	Version        string   `json:"version,omitempty" yaml:"version,omitempty"`
	PackageManager string   `json:"package_manager,omitempty" yaml:"package_manager,omitempty"`
	InstallFlags   []string `json:"install_flags,omitempty" yaml:"install_flags,omitempty"`
}

type PythonConfig struct {
	Version          string `json:"version,omitempty" yaml:"version,omitempty"`
	VenvPath         string `json:"venv_path,omitempty" yaml:"venv_path,omitempty"`
	RequirementsFile string `json:"requirements_file,omitempty" yaml:"requirements_file,omitempty"`
}

type GoConfig struct {
	Version    string   `json:"version,omitempty" yaml:"version,omitempty"`
	ModulePath string   `json:"module_path,omitempty" yaml:"module_path,omitempty"`
	BuildFlags []string `json:"build_flags,omitempty" yaml:"build_flags,omitempty"`
}

// ServerNotFoundError reports a lookup for a name the document does not
// declare.
type ServerNotFoundError struct {
	Name string
}

func (e *ServerNotFoundError) Error() string {
	return fmt.Sprintf("no server configuration for %q", e.Name)
}

// Load reads and parses the servers document at path. YAML is used for
// .yaml/.yml files, JSON otherwise.
func Load(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &doc)
	default:
		err = json.Unmarshal(b, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if doc.Version == "" {
		doc.Version = "1.0"
	}
	for name, spec := range doc.Servers {
		if spec.Command == "" {
			return nil, fmt.Errorf("server %q declares no command", name)
		}
		spec.Name = name
		doc.Servers[name] = spec
	}
	return &doc, nil
}

// Server returns the server spec registered under name.
func (d *Document) Server(name string) (ServerSpec, error) {
	spec, ok := d.Servers[name]
	if !ok {
		return ServerSpec{}, &ServerNotFoundError{Name: name}
	}
	return spec, nil
}

// Discover walks up from startDir looking for a servers document with one of
// the default names, returning its path or "" when none is found. A document
// near startDir wins over one further up regardless of extension; within one
// directory JSON is preferred over YAML.
func Discover(startDir string) string {
	return files.FindUp(startDir,
		DefaultFileName,
		"mcp_servers.config.yaml",
		"mcp_servers.config.yml",
	)
}
