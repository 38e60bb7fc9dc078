package engine

// Variant identifies which container engine binary is in use. The three
// engines share most of their CLI surface but differ in compose invocation
// and in how structured output must be requested.
type Variant string

const (
	Docker  Variant = "docker"
	Podman  Variant = "podman"
	Nerdctl Variant = "nerdctl"
)

// detectOrder is the fixed priority order for auto-detection.
var detectOrder = []Variant{Docker, Podman, Nerdctl}

// Variants lists the known engines in detection priority order.
func Variants() []Variant {
	out := make([]Variant, len(detectOrder))
	copy(out, detectOrder)
	return out
}

// String returns the engine binary name.
func (v Variant) String() string { return string(v) }

// jsonFormatArg returns the flag requesting structured output for list-style
// commands. Docker and nerdctl take a Go template and emit JSON lines;
// podman takes a literal "json" and emits a single array.
func (v Variant) jsonFormatArg() string {
	if v == Podman {
		return "--format=json"
	}
	return "--format={{json .}}"
}

// composeInvocation returns the binary and leading arguments for compose
// subcommands. Docker and nerdctl ship compose as a subcommand; podman
// relies on the external podman-compose binary.
func (v Variant) composeInvocation() (bin string, args []string) {
	switch v {
	case Podman:
		return "podman-compose", nil
	default:
		return string(v), []string{"compose"}
	}
}

// composeSupportsProjectName reports whether the compose implementation
// accepts an explicit -p project name override. Nerdctl derives the project
// name from the project directory instead, which is why callers must treat
// the directory name as authoritative.
func (v Variant) composeSupportsProjectName() bool {
	return v != Nerdctl
}
