package berth

import (
	"errors"
	"fmt"
	"strings"
)

// ImageRef is a parsed image reference: a name plus an optional tag or
// digest.
type ImageRef struct {
	Name   string
	Tag    string
	Digest string
}

// ParseImageRef parses "name[:tag][@digest]". The name may include a
// registry host with a port, which is not confused with a tag.
func ParseImageRef(s string) (ImageRef, error) {
	if strings.TrimSpace(s) == "" {
		return ImageRef{}, errors.New("image reference must not be empty")
	}

	ref := ImageRef{Name: s}
	if name, digest, ok := strings.Cut(ref.Name, "@"); ok {
		if digest == "" {
			return ImageRef{}, fmt.Errorf("image reference %q has an empty digest", s)
		}
		ref.Name, ref.Digest = name, digest
	}

	// A colon after the last slash separates the tag; earlier colons
	// belong to a registry host:port.
	slash := strings.LastIndex(ref.Name, "/")
	if colon := strings.LastIndex(ref.Name, ":"); colon > slash {
		tag := ref.Name[colon+1:]
		if tag == "" {
			return ImageRef{}, fmt.Errorf("image reference %q has an empty tag", s)
		}
		ref.Name, ref.Tag = ref.Name[:colon], tag
	}
	if ref.Name == "" {
		return ImageRef{}, fmt.Errorf("image reference %q has an empty name", s)
	}
	return ref, nil
}

// ShortName is the final path element of the image name, usable as a
// human-readable container name prefix.
func (r ImageRef) ShortName() string {
	if i := strings.LastIndex(r.Name, "/"); i >= 0 {
		return r.Name[i+1:]
	}
	return r.Name
}

func (r ImageRef) String() string {
	s := r.Name
	if r.Tag != "" {
		s += ":" + r.Tag
	}
	if r.Digest != "" {
		s += "@" + r.Digest
	}
	return s
}
