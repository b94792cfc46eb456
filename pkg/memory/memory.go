// Package memory implements the word-indexed backing store and its
// two-level cache hierarchy (spec.md §4.3): a direct-mapped L1 sitting
// in front of a larger direct-mapped L2, both write-through and
// write-allocate over a flat backing store.
package memory

import (
	"errors"
	"fmt"

	"github.com/slitherrisc/machine32/pkg/cache"
)

// ErrInvalidAddress is returned when a read or write targets a word
// index outside the configured memory size.
var ErrInvalidAddress = errors.New("invalid memory address")

const (
	// DefaultSize is the backing store's default word count (64KB).
	DefaultSize = 16384

	l1Lines      = 32
	l2Lines      = 128
	cacheLine    = 8
	l1AccessTime = 1
	l2AccessTime = 10
	memAccessTime = 100
)

// System is the memory hierarchy: a flat backing store fronted by
// L1/L2 caches. Addresses passed to Read/Write/Flush are byte
// addresses; the system converts to word indices internally.
type System struct {
	words []uint32

	cacheEnabled bool

	l1 *cache.Cache
	l2 *cache.Cache

	hasLastFetch bool
	lastFetch    uint32

	cycles     int
	programEnd uint32
}

// Option configures a System at construction time.
type Option func(*System)

// WithSize overrides the backing store's word count.
func WithSize(words int) Option {
	return func(s *System) { s.words = make([]uint32, words) }
}

// WithCacheDisabled bypasses both cache levels: every access costs
// exactly the backing-store access time.
func WithCacheDisabled() Option {
	return func(s *System) { s.cacheEnabled = false }
}

// New builds a memory system with the canonical L1(32x8@1)/L2(128x8@10)
// hierarchy and a 100-cycle backing-store access time.
func New(opts ...Option) *System {
	s := &System{
		words:        make([]uint32, DefaultSize),
		cacheEnabled: true,
		l1:           cache.New(l1Lines, cacheLine, l1AccessTime),
		l2:           cache.New(l2Lines, cacheLine, l2AccessTime),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset clears the backing store, both cache levels, and all counters.
func (s *System) Reset() {
	for i := range s.words {
		s.words[i] = 0
	}
	s.l1.Reset()
	s.l2.Reset()
	s.hasLastFetch = false
	s.lastFetch = 0
	s.cycles = 0
	s.programEnd = 0
}

// LoadProgram resets the system, then loads program into the backing
// store starting at word 0, pre-warming L1 line-by-line the way a
// cold-boot instruction cache would be primed by its loader.
func (s *System) LoadProgram(program []uint32) {
	s.Reset()
	for i, word := range program {
		idx := uint32(i)
		s.words[idx] = word
		if s.cacheEnabled {
			s.l1.Install(idx, word)
		}
	}
	s.programEnd = uint32(len(program))
}

func (s *System) wordIndex(addr uint32) (uint32, error) {
	idx := addr >> 2
	if int(idx) >= len(s.words) {
		return 0, fmt.Errorf("%w: %#x", ErrInvalidAddress, addr)
	}
	return idx, nil
}

// Read reads the word at byte address addr. With caching enabled,
// isInstructionFetch suppresses repeated cache bookkeeping and cycle
// cost for a stalled refetch of the same address; with caching
// disabled every read costs the backing-store access time.
func (s *System) Read(addr uint32, isInstructionFetch bool) (data uint32, cycles int, err error) {
	idx, err := s.wordIndex(addr)
	if err != nil {
		return 0, 0, err
	}

	if !s.cacheEnabled {
		s.cycles += memAccessTime
		return s.words[idx], memAccessTime, nil
	}

	if isInstructionFetch {
		if s.hasLastFetch && s.lastFetch == addr {
			return s.words[idx], 0, nil
		}
		s.hasLastFetch = true
		s.lastFetch = addr
	}

	if hit, data, c := s.l1.Read(idx, isInstructionFetch); hit {
		s.cycles += c
		return data, c, nil
	}

	if hit, data, c2 := s.l2.Read(idx, isInstructionFetch); hit {
		s.l1.Install(idx, data)
		total := l1AccessTime + c2
		s.cycles += total
		return data, total, nil
	}

	data = s.words[idx]
	s.l1.Install(idx, data)
	s.l2.Install(idx, data)
	total := l1AccessTime + l2AccessTime + memAccessTime
	s.cycles += total
	return data, total, nil
}

// Write writes value at byte address addr through both cache levels
// and the backing store (write-through, write-allocate).
func (s *System) Write(addr, value uint32) (cycles int, err error) {
	idx, err := s.wordIndex(addr)
	if err != nil {
		return 0, err
	}

	s.words[idx] = value

	if !s.cacheEnabled {
		s.cycles += memAccessTime
		return memAccessTime, nil
	}

	_, c1 := s.l1.Write(idx, value)
	_, c2 := s.l2.Write(idx, value)
	total := c1 + c2 + memAccessTime
	s.cycles += total
	return total, nil
}

// FlushCacheLine forces writeback of the line containing byte address
// addr in both cache levels, clearing their dirty bits. A no-op when
// caching is disabled, neither level holds the line, or the line is
// clean (spec §4.3: flush writes back a dirty line, it does not
// manufacture one).
func (s *System) FlushCacheLine(addr uint32) error {
	if !s.cacheEnabled {
		return nil
	}
	idx, err := s.wordIndex(addr)
	if err != nil {
		return err
	}
	s.flushLevel(s.l1, idx)
	s.flushLevel(s.l2, idx)
	return nil
}

func (s *System) flushLevel(c *cache.Cache, idx uint32) {
	line := c.Line(idx)
	tag := c.Tag(idx)
	if !line.Valid || line.Tag != tag || !line.Dirty {
		return
	}
	base := tag*(c.Size*c.LineSize) + c.Index(idx)*c.LineSize
	for i := uint32(0); i < c.LineSize; i++ {
		s.words[base+i] = line.Data[i]
	}
	line.Dirty = false
}

// Stats is a point-in-time snapshot of the memory system's counters.
type Stats struct {
	L1     cache.Stats
	L2     cache.Stats
	Cycles int
}

// GetStats returns the current L1/L2 hit-rate stats and total elapsed
// cycles.
func (s *System) GetStats() Stats {
	return Stats{L1: s.l1.GetStats(), L2: s.l2.GetStats(), Cycles: s.cycles}
}

// ProgramEnd returns the word count of the most recently loaded
// program.
func (s *System) ProgramEnd() uint32 { return s.programEnd }

// PeekWord reads the backing store directly by word index, bypassing
// the cache hierarchy and contributing no cycles or hit/miss
// bookkeeping. This is how an out-of-band driver observes the
// program-end convention (spec §6.3: word 0 == 0xFFFF signals
// completion) between Step calls, without perturbing the simulated
// memory timing it is merely watching.
func (s *System) PeekWord(idx uint32) (uint32, error) {
	if int(idx) >= len(s.words) {
		return 0, fmt.Errorf("%w: word %d", ErrInvalidAddress, idx)
	}
	return s.words[idx], nil
}

// Size returns the backing store's word count.
func (s *System) Size() int { return len(s.words) }
