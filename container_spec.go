package berth

import (
	"errors"
	"fmt"

	"github.com/RevCBH/berth/engine"
	"github.com/RevCBH/berth/wait"
)

// Spec describes one container to run. It is read once when submitted to
// Run; mutating it afterwards has no effect on the running container.
type Spec struct {
	// Image is the image reference, e.g. "postgres:16-alpine".
	Image string

	// Name is an optional human-readable prefix for the allocated unique
	// container label. Defaults to the image short name.
	Name string

	// Env contains environment variables to set in the container.
	Env map[string]string

	// Ports declares the ports to publish. Declared ports are resolved to
	// their host bindings before Run returns Ready.
	Ports []*ExposedPort

	// Mounts are bind mounts from the host into the container.
	Mounts []engine.Mount

	// Cmd overrides the image command.
	Cmd []string

	// Wait is the readiness probe set. All strategies must succeed before
	// the container is considered ready. Empty means ready at start.
	Wait []wait.Strategy
}

func (s Spec) validate() (ImageRef, error) {
	ref, err := ParseImageRef(s.Image)
	if err != nil {
		return ImageRef{}, err
	}
	for i, p := range s.Ports {
		if p == nil {
			return ImageRef{}, fmt.Errorf("port %d is nil", i)
		}
		if p.container <= 0 || p.container > 65535 {
			return ImageRef{}, fmt.Errorf("container port out of range: %d", p.container)
		}
	}
	for _, m := range s.Mounts {
		if m.Source == "" || m.Target == "" {
			return ImageRef{}, errors.New("mount source and target must not be empty")
		}
	}
	return ref, nil
}

func (s Spec) createConfig(ref ImageRef, label string) engine.CreateConfig {
	cfg := engine.CreateConfig{
		Image: s.Image,
		Name:  label,
		Env:   s.Env,
		Cmd:   s.Cmd,
		Labels: map[string]string{
			ManagedLabel: ref.ShortName(),
			NameLabel:    label,
		},
	}
	for _, p := range s.Ports {
		cfg.Ports = append(cfg.Ports, p.spec())
	}
	cfg.Mounts = append(cfg.Mounts, s.Mounts...)
	return cfg
}
