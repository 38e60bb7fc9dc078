package engine

import (
	"context"
	"fmt"
)

// Detect finds an available container engine. Candidates are probed in a
// fixed priority order (docker, podman, nerdctl) by running the binary's
// version command; the first one that responds wins. Returns ErrNotInstalled
// when none do.
func Detect(ctx context.Context, opts ...Option) (*CLI, error) {
	return detect(ctx, detectOrder, opts...)
}

// Probe checks a single engine variant and returns its client version.
func Probe(ctx context.Context, variant Variant, opts ...Option) (string, error) {
	return New(variant, opts...).probeVersion(ctx)
}

func detect(ctx context.Context, candidates []Variant, opts ...Option) (*CLI, error) {
	for _, variant := range candidates {
		c := New(variant, opts...)
		version, err := c.probeVersion(ctx)
		if err != nil {
			continue
		}
		c.version = version
		return c, nil
	}
	return nil, ErrNotInstalled
}

// probeVersion verifies the engine binary works and returns its client
// version. Docker takes a Go template format; podman and nerdctl take a
// literal "json".
func (c *CLI) probeVersion(ctx context.Context) (string, error) {
	format := "json"
	if c.variant == Docker {
		format = "{{json .}}"
	}
	out, err := c.run(ctx, "version", "--format", format)
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", c.variant, err)
	}
	var parsed versionJSON
	if err := decodeFirst(out, &parsed); err != nil {
		return "", err
	}
	return parsed.Client.Version, nil
}
