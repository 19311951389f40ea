// Package selector picks the rendition to download from a master playlist.
package selector

import (
	"github.com/famomatic/tvdl/internal/m3u8"
	"github.com/famomatic/tvdl/internal/types"
)

// Select returns the first variant whose bandwidth equals bandwidth. There
// is no nearest-bandwidth fallback.
func Select(variants m3u8.VariantPlaylist, bandwidth int) (m3u8.Variant, error) {
	for _, v := range variants {
		if v.Bandwidth == bandwidth {
			return v, nil
		}
	}
	return m3u8.Variant{}, &types.NoMatchingVariantError{
		Bandwidth: bandwidth,
		Available: variants.Bandwidths(),
	}
}
