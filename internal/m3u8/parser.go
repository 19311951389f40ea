package m3u8

import (
	"bufio"
	"net/url"
	"strconv"
	"strings"

	"github.com/famomatic/tvdl/internal/types"
)

const (
	directiveMarker = "#EXT"
	commentMarker   = "#"
)

// Directive names with dedicated handling.
const (
	TagHeader     = "EXTM3U"
	TagStreamInf  = "EXT-X-STREAM-INF"
	TagKey        = "EXT-X-KEY"
	TagInf        = "EXTINF"
	TagEndList    = "EXT-X-ENDLIST"
	KeyMethodNone = "NONE"
)

// attributeListTags carry a key=value attribute list. Any other directive
// keeps its raw value.
var attributeListTags = map[string]struct{}{
	TagStreamInf:               {},
	TagKey:                     {},
	"EXT-X-MEDIA":              {},
	"EXT-X-MAP":                {},
	"EXT-X-I-FRAME-STREAM-INF": {},
	"EXT-X-SESSION-KEY":        {},
	"EXT-X-SESSION-DATA":       {},
	"EXT-X-START":              {},
	"EXT-X-DATERANGE":          {},
	"EXT-X-PRELOAD-HINT":       {},
	"EXT-X-RENDITION-REPORT":   {},
	"EXT-X-CONTENT-STEERING":   {},
	"EXT-X-DEFINE":             {},
	"EXT-X-SERVER-CONTROL":     {},
	"EXT-X-PART":               {},
	"EXT-X-PART-INF":           {},
	"EXT-X-SKIP":               {},
}

type directiveHandler func(b *builder, e Entry) error

var directiveHandlers = map[string]directiveHandler{
	TagStreamInf: handleStreamInf,
	TagKey:       handleKey,
	TagInf:       handleInf,
	TagEndList:   handleEndList,
}

// builder holds the state of a single Parse call.
type builder struct {
	base     *url.URL
	playlist *Playlist

	streamInf   *Entry
	keyURI      string
	duration    float64
	pendingAttr Attributes
}

// Parse parses manifest text retrieved from baseURL. Relative URIs are
// resolved against baseURL; an empty baseURL leaves them untouched.
func Parse(text, baseURL string) (*Playlist, error) {
	b := &builder{playlist: &Playlist{}}
	if strings.TrimSpace(baseURL) != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, &types.ParseError{Line: 0, Text: baseURL, Reason: "invalid base url"}
		}
		b.base = base
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, directiveMarker) {
			if err := b.directive(lineNo, line); err != nil {
				return nil, err
			}
			continue
		}
		if strings.HasPrefix(line, commentMarker) {
			continue
		}
		if err := b.uri(lineNo, line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &types.ParseError{Line: lineNo + 1, Reason: err.Error()}
	}
	if b.streamInf != nil {
		return nil, &types.ParseError{Line: b.streamInf.Line, Text: b.streamInf.text(), Reason: "stream info without uri"}
	}
	return b.playlist, nil
}

func (b *builder) directive(lineNo int, line string) error {
	body := line[len(commentMarker):]
	name, value, _ := strings.Cut(body, ":")
	entry := Entry{
		Kind:  EntryDirective,
		Line:  lineNo,
		Name:  name,
		Value: value,
	}
	if _, ok := attributeListTags[name]; ok {
		attrs, reason := parseAttributes(value)
		if reason != "" {
			return &types.ParseError{Line: lineNo, Text: line, Reason: reason}
		}
		entry.Attrs = attrs
	}
	if h, ok := directiveHandlers[name]; ok {
		if err := h(b, entry); err != nil {
			return err
		}
	}
	b.pendingAttr = append(b.pendingAttr, entry.Attrs...)
	b.playlist.Entries = append(b.playlist.Entries, entry)
	return nil
}

func (b *builder) uri(lineNo int, line string) error {
	resolved, err := b.resolve(line)
	if err != nil {
		return &types.ParseError{Line: lineNo, Text: line, Reason: "invalid uri"}
	}
	b.playlist.Entries = append(b.playlist.Entries, Entry{
		Kind:  EntryURI,
		Line:  lineNo,
		Value: resolved,
		Attrs: b.pendingAttr,
	})
	b.pendingAttr = nil

	if b.streamInf != nil {
		bw, _ := b.streamInf.Attrs.Get("BANDWIDTH")
		bandwidth, _ := strconv.Atoi(bw)
		b.playlist.Variants = append(b.playlist.Variants, Variant{
			Bandwidth: bandwidth,
			URI:       resolved,
			Attrs:     b.streamInf.Attrs,
		})
		b.streamInf = nil
		return nil
	}
	b.playlist.Segments = append(b.playlist.Segments, Segment{
		URI:      resolved,
		KeyURI:   b.keyURI,
		Duration: b.duration,
	})
	b.duration = 0
	return nil
}

func (b *builder) resolve(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if b.base == nil || r.IsAbs() {
		return ref, nil
	}
	return b.base.ResolveReference(r).String(), nil
}

func handleStreamInf(b *builder, e Entry) error {
	if b.streamInf != nil {
		return &types.ParseError{Line: b.streamInf.Line, Text: b.streamInf.text(), Reason: "stream info without uri"}
	}
	bw, ok := e.Attrs.Get("BANDWIDTH")
	if !ok {
		return &types.ParseError{Line: e.Line, Text: e.text(), Reason: "missing BANDWIDTH"}
	}
	if _, err := strconv.Atoi(bw); err != nil {
		return &types.ParseError{Line: e.Line, Text: e.text(), Reason: "invalid BANDWIDTH"}
	}
	b.streamInf = &e
	return nil
}

func handleKey(b *builder, e Entry) error {
	method, _ := e.Attrs.Get("METHOD")
	if strings.EqualFold(method, KeyMethodNone) {
		b.keyURI = ""
		return nil
	}
	uri, ok := e.Attrs.Get("URI")
	if !ok || uri == "" {
		return &types.ParseError{Line: e.Line, Text: e.text(), Reason: "missing key URI"}
	}
	resolved, err := b.resolve(uri)
	if err != nil {
		return &types.ParseError{Line: e.Line, Text: e.text(), Reason: "invalid key URI"}
	}
	b.keyURI = resolved
	return nil
}

func handleInf(b *builder, e Entry) error {
	raw, _, _ := strings.Cut(e.Value, ",")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return &types.ParseError{Line: e.Line, Text: e.text(), Reason: "invalid duration"}
	}
	b.duration = d
	return nil
}

func handleEndList(b *builder, _ Entry) error {
	b.playlist.Ended = true
	return nil
}

// parseAttributes splits a comma-separated key=value list. Commas inside
// double-quoted values do not split. A non-empty reason reports malformed
// input.
func parseAttributes(raw string) (Attributes, string) {
	var attrs Attributes
	if strings.TrimSpace(raw) == "" {
		return attrs, ""
	}
	i := 0
	for i <= len(raw) {
		eq := strings.IndexAny(raw[i:], "=,")
		if eq < 0 || raw[i+eq] == ',' {
			return nil, "missing '=' in attribute"
		}
		key := strings.TrimSpace(raw[i : i+eq])
		if key == "" {
			return nil, "empty attribute name"
		}
		i += eq + 1

		var value string
		rest := strings.TrimLeft(raw[i:], " ")
		i = len(raw) - len(rest)
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, "unterminated quoted value"
			}
			value = rest[1 : 1+end]
			i += end + 2
			tail := strings.TrimLeft(raw[i:], " ")
			i = len(raw) - len(tail)
			if tail != "" && tail[0] != ',' {
				return nil, "unexpected text after quoted value"
			}
		} else {
			comma := strings.IndexByte(rest, ',')
			if comma < 0 {
				value = strings.TrimSpace(rest)
				i = len(raw)
			} else {
				value = strings.TrimSpace(rest[:comma])
				i += comma
			}
		}
		attrs = append(attrs, Attribute{Key: key, Value: value})

		if i >= len(raw) {
			break
		}
		// raw[i] is the separating comma.
		i++
	}
	return attrs, ""
}
