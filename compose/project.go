// Package compose runs multi-service fixtures through the engine's compose
// implementation. A Project generates its compose file into a uniquely
// named temp directory; the directory name is the engine-side project name,
// so parallel projects never collide.
package compose

import (
	"fmt"
	"sort"

	"github.com/RevCBH/berth"
	"github.com/RevCBH/berth/engine"
	"github.com/RevCBH/berth/wait"
	"gopkg.in/yaml.v3"
)

// Service describes one service of a project. The Name is the YAML service
// key and the key readiness results are reported under.
type Service struct {
	Name      string
	Image     string
	Env       map[string]string
	Ports     []*berth.ExposedPort
	Command   []string
	DependsOn []string

	// Wait is the readiness probe set for this service. Empty means the
	// service is ready as soon as compose reports it up.
	Wait []wait.Strategy
}

func (s Service) validate() error {
	if s.Name == "" {
		return fmt.Errorf("service has no name")
	}
	if _, err := berth.ParseImageRef(s.Image); err != nil {
		return fmt.Errorf("service %s: %w", s.Name, err)
	}
	for i, p := range s.Ports {
		if p == nil {
			return fmt.Errorf("service %s: port %d is nil", s.Name, i)
		}
	}
	return nil
}

// FileName is the name of the generated compose file inside the project
// directory.
const FileName = "docker-compose.yaml"

type serviceYAML struct {
	Image       string   `yaml:"image"`
	Command     []string `yaml:"command,omitempty"`
	Environment []string `yaml:"environment,omitempty"`
	Ports       []string `yaml:"ports,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
}

// renderFile builds the compose YAML. Service keys appear in declaration
// order; the generated file carries no top-level name, because the
// directory name is authoritative on every engine.
func renderFile(services []Service) ([]byte, error) {
	var mapping yaml.Node
	mapping.Kind = yaml.MappingNode
	mapping.Tag = "!!map"

	for _, svc := range services {
		var key yaml.Node
		key.SetString(svc.Name)

		var val yaml.Node
		if err := val.Encode(serviceYAML{
			Image:       svc.Image,
			Command:     svc.Command,
			Environment: envList(svc.Env),
			Ports:       portList(svc.Ports),
			DependsOn:   svc.DependsOn,
		}); err != nil {
			return nil, fmt.Errorf("encode service %s: %w", svc.Name, err)
		}
		mapping.Content = append(mapping.Content, &key, &val)
	}

	doc := struct {
		Services *yaml.Node `yaml:"services"`
	}{Services: &mapping}
	return yaml.Marshal(doc)
}

// envList renders environment variables as sorted KEY=value entries so the
// generated file is deterministic.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// portList renders port mappings. Unbound ports publish on an ephemeral
// host port; fixed ports keep their requested binding.
func portList(ports []*berth.ExposedPort) []string {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		out = append(out, p.Mapping())
	}
	return out
}

// engineProject is the handle the engine needs to address this project.
func (p *Project) engineProject() engine.ComposeProject {
	return engine.ComposeProject{Dir: p.dir.Path(), Name: p.dir.Name()}
}
