package dlm1

import (
	"bytes"
	"errors"
	"fmt"
)

// TagSize is the byte length of a record tag.
const TagSize = 4

// Tag is the 4-byte ASCII marker in front of an anchor payload.
type Tag string

// Known record tags.
const (
	TagDLM1 Tag = "DLM1" // dataset version manifest
	TagTRN1 Tag = "TRN1" // transform / lineage record
	TagOTR1 Tag = "OTR1" // other
)

// TagUnknown is reported when no known tag was found.
const TagUnknown Tag = "UNKNOWN"

var errInvalidTag = errors.New("tag must be exactly 4 printable ASCII bytes")

// KnownTags lists the tags recognised when scanning scripts.
func KnownTags() []Tag {
	return []Tag{TagDLM1, TagTRN1, TagOTR1}
}

// IsKnown reports whether t is one of the recognised tags.
func (t Tag) IsKnown() bool {
	switch t {
	case TagDLM1, TagTRN1, TagOTR1:
		return true
	default:
		return false
	}
}

// ComposeTag returns tag followed by payload.
func ComposeTag(tag Tag, payload []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: %q", errInvalidTag, string(tag))
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] < 0x20 || tag[i] > 0x7e {
			return nil, fmt.Errorf("%w: %q", errInvalidTag, string(tag))
		}
	}
	out := make([]byte, 0, TagSize+len(payload))
	out = append(out, tag...)
	return append(out, payload...), nil
}

// ResolveTag identifies a known tag at the start of a push sequence. The tag
// may be a push of its own or the prefix of the first push.
func ResolveTag(pushes [][]byte) (Tag, bool) {
	if len(pushes) == 0 || len(pushes[0]) < TagSize {
		return "", false
	}
	t := Tag(pushes[0][:TagSize])
	if !t.IsKnown() {
		return "", false
	}
	return t, true
}

// SplitTag returns the payload that follows tag in a push sequence. When the
// first push is exactly the tag and another push follows, that push is the
// payload; otherwise the payload is the remainder of the first push after the
// tag prefix. ok is false when tag is not present or the payload is empty.
func SplitTag(tag Tag, pushes [][]byte) ([]byte, bool) {
	if len(pushes) == 0 {
		return nil, false
	}
	first := pushes[0]
	if string(first) == string(tag) && len(pushes) >= 2 {
		return pushes[1], true
	}
	if len(first) > len(tag) && bytes.HasPrefix(first, []byte(tag)) {
		return first[len(tag):], true
	}
	return nil, false
}
