package berth

import (
	"strings"

	"github.com/RevCBH/berth/engine"
	"github.com/oklog/ulid/v2"
)

const (
	// ManagedLabel marks containers created by this module. The value is
	// the image short name. Presence of the key means managed.
	ManagedLabel = "berth.managed"

	// NameLabel carries the allocated unique label, so a container can be
	// found even after the engine rewrites its display name.
	NameLabel = "berth.name"
)

// Identity pairs the engine-assigned container ID with the unique,
// time-ordered label allocated at creation. The label never repeats while
// its container is running, so parallel test runs cannot collide.
type Identity struct {
	ID    engine.ID
	Label string
}

// newLabel allocates a unique container label. ULIDs are time-ordered, so
// labels sort by creation time.
func newLabel(prefix string) string {
	prefix = sanitizeName(prefix)
	if prefix == "" {
		prefix = "container"
	}
	return "berth-" + prefix + "-" + ulid.Make().String()
}

// sanitizeName reduces a free-form prefix to characters the engines accept
// in container names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-.")
}
