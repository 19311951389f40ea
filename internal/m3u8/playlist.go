package m3u8

// Variant is one bitrate rendition listed by a master playlist.
type Variant struct {
	Bandwidth int
	URI       string
	Attrs     Attributes
}

// VariantPlaylist lists variants in manifest order. Bandwidths may repeat.
type VariantPlaylist []Variant

// Bandwidths returns the bandwidth of every variant in order.
func (v VariantPlaylist) Bandwidths() []int {
	out := make([]int, 0, len(v))
	for _, variant := range v {
		out = append(out, variant.Bandwidth)
	}
	return out
}

// Segment is one media segment. KeyURI is empty for unencrypted segments.
type Segment struct {
	URI      string
	KeyURI   string
	Duration float64
}

// Encrypted reports whether the segment references a key.
func (s Segment) Encrypted() bool {
	return s.KeyURI != ""
}

// MediaPlaylist lists segments in playback and decryption order.
type MediaPlaylist []Segment

// KeyURIs returns the distinct key URIs in first-seen order.
func (m MediaPlaylist) KeyURIs() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range m {
		if s.KeyURI == "" {
			continue
		}
		if _, ok := seen[s.KeyURI]; ok {
			continue
		}
		seen[s.KeyURI] = struct{}{}
		out = append(out, s.KeyURI)
	}
	return out
}

// Playlist is the parsed form of one manifest.
type Playlist struct {
	Entries  []Entry
	Variants VariantPlaylist
	Segments MediaPlaylist
	Ended    bool
}

// IsMaster reports whether the manifest lists variants.
func (p *Playlist) IsMaster() bool {
	return len(p.Variants) > 0
}
