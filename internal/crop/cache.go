package crop

import (
	"encoding/binary"
	"image"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// DefaultCacheSize is the number of intermediate previews a Sequencer keeps.
const DefaultCacheSize = 32

// stepKey is the part of a Step that determines its output.
type stepKey struct {
	region Region
	o      Orientation
}

type cacheEntry struct {
	hash    uint64
	feather int
	prefix  []stepKey
	img     *image.NRGBA
}

// prefixCache holds composited results keyed by (history prefix, feather).
// Lookups compare the full prefix, so hash collisions never return a wrong
// image. Eviction is first-in first-out.
type prefixCache struct {
	size    int
	entries []cacheEntry
}

func newPrefixCache(size int) *prefixCache {
	return &prefixCache{size: size}
}

func keysOf(steps []Step) []stepKey {
	keys := make([]stepKey, len(steps))
	for i, s := range steps {
		keys[i] = stepKey{region: s.Region, o: s.Orientation}
	}
	return keys
}

func hashPrefix(prefix []stepKey, feather int) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		_, _ = d.Write(buf[:])
	}
	put(feather)
	for _, k := range prefix {
		put(k.region.X)
		put(k.region.Y)
		put(k.region.Width)
		put(k.region.Height)
		_, _ = d.WriteString(string(k.o))
	}
	return d.Sum64()
}

func (c *prefixCache) get(prefix []stepKey, feather int) (*image.NRGBA, bool) {
	if c == nil || c.size <= 0 {
		return nil, false
	}
	h := hashPrefix(prefix, feather)
	for _, e := range c.entries {
		if e.hash == h && e.feather == feather && slices.Equal(e.prefix, prefix) {
			return e.img, true
		}
	}
	return nil, false
}

func (c *prefixCache) put(prefix []stepKey, feather int, img *image.NRGBA) {
	if c == nil || c.size <= 0 {
		return
	}
	if _, ok := c.get(prefix, feather); ok {
		return
	}
	if len(c.entries) >= c.size {
		c.entries = slices.Delete(c.entries, 0, 1)
	}
	c.entries = append(c.entries, cacheEntry{
		hash:    hashPrefix(prefix, feather),
		feather: feather,
		prefix:  slices.Clone(prefix),
		img:     img,
	})
}

// longest returns the longest cached prefix of keys at feather, with its
// length. It returns 0 and nil when nothing is cached.
func (c *prefixCache) longest(keys []stepKey, feather int) (int, *image.NRGBA) {
	for n := len(keys); n > 0; n-- {
		if img, ok := c.get(keys[:n], feather); ok {
			return n, img
		}
	}
	return 0, nil
}

func (c *prefixCache) count() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
