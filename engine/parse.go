package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// decodeObjects splits structured engine output into individual JSON
// objects. Engines are inconsistent here: docker and nerdctl emit JSON
// lines for list commands, podman emits a single array, and inspect emits
// either an array or a bare object depending on flags. All shapes are
// accepted.
func decodeObjects(output string) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, &ParseError{Output: output, Err: err}
		}
		return items, nil
	}

	// Single object or JSON lines: a stream decoder handles both.
	var items []json.RawMessage
	dec := json.NewDecoder(strings.NewReader(trimmed))
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			return nil, &ParseError{Output: output, Err: err}
		}
		items = append(items, raw)
	}
	return items, nil
}

// decodeFirst unmarshals the first object of structured engine output into v.
func decodeFirst(output string, v any) error {
	items, err := decodeObjects(output)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return &ParseError{Output: output, Err: fmt.Errorf("empty output")}
	}
	if err := json.Unmarshal(items[0], v); err != nil {
		return &ParseError{Output: output, Err: err}
	}
	return nil
}

// decodeEach unmarshals every object of structured engine output, calling
// visit for each one. T is the per-object shape.
func decodeEach[T any](output string, visit func(T)) error {
	items, err := decodeObjects(output)
	if err != nil {
		return err
	}
	for _, raw := range items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return &ParseError{Output: output, Err: err}
		}
		visit(v)
	}
	return nil
}

// inspectJSON is the subset of `<engine> inspect` output we read. Docker
// and podman agree on these field names.
type inspectJSON struct {
	ID    string `json:"Id"`
	State struct {
		Status   string `json:"Status"`
		Running  bool   `json:"Running"`
		ExitCode int    `json:"ExitCode"`
		Health   *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	} `json:"State"`
	NetworkSettings struct {
		Ports map[string][]PortBinding `json:"Ports"`
	} `json:"NetworkSettings"`
}

func (j inspectJSON) toResult() InspectResult {
	result := InspectResult{
		ID: ID(j.ID),
		State: ContainerState{
			Status:   j.State.Status,
			Running:  j.State.Running,
			ExitCode: j.State.ExitCode,
		},
		Ports: j.NetworkSettings.Ports,
	}
	if j.State.Health != nil {
		result.State.Health = Health{Status: j.State.Health.Status}
	}
	return result
}

// psJSON is one row of `<engine> ps` structured output.
type psJSON struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	Image  string `json:"Image"`
	Status string `json:"Status"`
}

// composePSJSON is one row of `<compose> ps` structured output.
type composePSJSON struct {
	ID      string `json:"ID"`
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
}

// versionJSON is the client portion of `<engine> version` output.
type versionJSON struct {
	Client struct {
		Version string `json:"Version"`
	} `json:"Client"`
}
