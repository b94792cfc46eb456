// Package cache implements a direct-mapped cache line and cache, the
// building block of the memory hierarchy in pkg/memory.
package cache

// Line is one direct-mapped cache line: a validity/dirty bit, the tag
// that identifies which block of backing-store words it holds, and
// the line's words.
type Line struct {
	Valid bool
	Dirty bool
	Tag   uint32
	Data  []uint32
}

func newLine(lineSize uint32) Line {
	return Line{Data: make([]uint32, lineSize)}
}

// Cache is a direct-mapped cache of Size lines, LineSize words each,
// with a fixed per-access cycle cost.
type Cache struct {
	Size       uint32
	LineSize   uint32
	AccessTime int

	lines []Line

	hits   int
	misses int
}

// New allocates a cache with the given geometry.
func New(size, lineSize uint32, accessTime int) *Cache {
	c := &Cache{Size: size, LineSize: lineSize, AccessTime: accessTime}
	c.lines = make([]Line, size)
	for i := range c.lines {
		c.lines[i] = newLine(lineSize)
	}
	return c
}

// Reset clears every line and all counters.
func (c *Cache) Reset() {
	for i := range c.lines {
		c.lines[i] = newLine(c.LineSize)
	}
	c.hits = 0
	c.misses = 0
}

// Index, Tag, and Offset decompose a word index per spec.md §4.3.
func (c *Cache) Index(wordIdx uint32) uint32  { return (wordIdx / c.LineSize) % c.Size }
func (c *Cache) Tag(wordIdx uint32) uint32    { return wordIdx / (c.Size * c.LineSize) }
func (c *Cache) Offset(wordIdx uint32) uint32 { return wordIdx % c.LineSize }

// Line returns the line backing wordIdx, for callers (the owning
// MemorySystem) that need to install or evict it directly.
func (c *Cache) Line(wordIdx uint32) *Line {
	return &c.lines[c.Index(wordIdx)]
}

// Read looks up wordIdx and counts the access as a hit or miss.
// isInstructionFetch mirrors memory.System.Read's parameter but
// does not change the counting here: spec.md §4.3's only de-dup for a
// repeated instruction fetch is the memory system's last-fetch-address
// short-circuit (memory.go), which already returns before this is
// ever called for a stalled refetch — every call that does reach here
// is a real access and counts like any other.
func (c *Cache) Read(wordIdx uint32, isInstructionFetch bool) (hit bool, data uint32, cycles int) {
	line := c.Line(wordIdx)
	tag := c.Tag(wordIdx)
	offset := c.Offset(wordIdx)

	if line.Valid && line.Tag == tag {
		c.hits++
		return true, line.Data[offset], c.AccessTime
	}

	c.misses++
	return false, 0, c.AccessTime
}

// Write stores value at wordIdx, allocating the line on a miss
// (write-allocate). A miss that changes the line's tag reallocates and
// zeros its Data first, same as Install, so a previous tenant's words
// at other offsets can never be read back as live data for the new
// tag.
func (c *Cache) Write(wordIdx, value uint32) (hit bool, cycles int) {
	line := c.Line(wordIdx)
	tag := c.Tag(wordIdx)
	offset := c.Offset(wordIdx)

	if line.Valid && line.Tag == tag {
		c.hits++
		line.Data[offset] = value
		line.Dirty = true
		return true, c.AccessTime
	}

	c.misses++
	if !line.Valid || line.Tag != tag {
		line.Data = make([]uint32, c.LineSize)
	}
	line.Valid = true
	line.Tag = tag
	line.Data[offset] = value
	line.Dirty = true
	return false, c.AccessTime
}

// Install fills the line owning wordIdx with the given value at the
// correct offset, allocating (and clearing) the line first if it
// currently holds a different tag. Used to populate a cache level
// after a lower-level hit or a backing-store fetch.
func (c *Cache) Install(wordIdx, value uint32) {
	line := c.Line(wordIdx)
	tag := c.Tag(wordIdx)
	if !line.Valid || line.Tag != tag {
		line.Valid = true
		line.Tag = tag
		line.Data = make([]uint32, c.LineSize)
	}
	line.Data[c.Offset(wordIdx)] = value
}

// Stats is a point-in-time snapshot of hit/miss counters.
type Stats struct {
	Hits    int
	Misses  int
	HitRate float64
}

// GetStats returns the cache's hit/miss counters and hit rate.
func (c *Cache) GetStats() Stats {
	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total) * 100
	}
	return Stats{Hits: c.hits, Misses: c.misses, HitRate: rate}
}
