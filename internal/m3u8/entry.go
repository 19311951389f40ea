package m3u8

import "strings"

// EntryKind distinguishes the two kinds of manifest entries.
type EntryKind int

const (
	// EntryDirective is a "#EXT..." line.
	EntryDirective EntryKind = iota
	// EntryURI is a plain URI line.
	EntryURI
)

func (k EntryKind) String() string {
	switch k {
	case EntryDirective:
		return "directive"
	case EntryURI:
		return "uri"
	default:
		return "unknown"
	}
}

// Attribute is one key=value pair of a directive attribute list.
// Quoted values are stored without their quotes.
type Attribute struct {
	Key   string
	Value string
}

// Attributes is an ordered attribute list. Keys are not required to be unique.
type Attributes []Attribute

// Get returns the first value stored under key.
func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if strings.EqualFold(attr.Key, key) {
			return attr.Value, true
		}
	}
	return "", false
}

// Entry is one meaningful manifest line.
//
// For directives, Name is the directive name without the leading marker
// (e.g. "EXT-X-KEY"), Value the raw text after the colon and Attrs the
// parsed attribute list when the directive carries one.
// For URIs, Value is the URI resolved against the manifest base URL and Attrs
// holds the attributes of the directives immediately preceding it.
type Entry struct {
	Kind  EntryKind
	Line  int
	Name  string
	Value string
	Attrs Attributes
}

// IsDirective reports whether e is a directive named name.
func (e Entry) IsDirective(name string) bool {
	return e.Kind == EntryDirective && e.Name == name
}

// text reconstructs the manifest line of a directive entry.
func (e Entry) text() string {
	if e.Kind == EntryURI {
		return e.Value
	}
	if e.Value == "" {
		return commentMarker + e.Name
	}
	return commentMarker + e.Name + ":" + e.Value
}
