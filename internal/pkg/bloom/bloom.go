// Package bloom keeps a Redis-backed Bloom filter. A false answer from Exists
// is definitive; a true answer is only probable.
package bloom

import (
	"context"
	_ "embed"
	"errors"
	"strconv"

	"imagescan/internal/pkg/hash"
	"imagescan/internal/pkg/redis"
)

var (
	// ErrTooLargeOffset indicates the offset is too large in bitset.
	ErrTooLargeOffset = errors.New("too large offset")

	//go:embed set_script.lua
	setLuaScript string
	setScript    = redis.NewScript(setLuaScript)

	//go:embed get_script.lua
	getLuaScript string
	getScript    = redis.NewScript(getLuaScript)
)

type bitSet interface {
	test(ctx context.Context, offsets []uint) (bool, error)
	set(ctx context.Context, offsets []uint) error
	clear(ctx context.Context) error
}

// Filter is a Bloom filter of byte strings.
type Filter struct {
	bits   bitSet
	size   uint
	hashes uint
}

// NewBloomFilter creates a filter of size bits using hashes hash functions.
// The size is part of the Redis key, so resizing starts from an empty
// bitmap instead of reading one laid out for another size.
func NewBloomFilter(store redis.Cache, key string, size uint, hashes uint) *Filter {
	return &Filter{
		bits:   newRedisBitSet(store, key+":"+strconv.FormatUint(uint64(size), 10), size),
		size:   size,
		hashes: hashes,
	}
}

func (f *Filter) locations(member []byte) []uint {
	out := make([]uint, f.hashes)
	buf := make([]byte, len(member)+1)
	copy(buf, member)
	for i := range out {
		buf[len(member)] = byte(i)
		out[i] = uint(hash.Hash(buf) % uint64(f.size))
	}
	return out
}

// Add records member.
func (f *Filter) Add(ctx context.Context, member []byte) error {
	return f.bits.set(ctx, f.locations(member))
}

// AddMany records every member in a single round trip.
func (f *Filter) AddMany(ctx context.Context, members [][]byte) error {
	if len(members) == 0 {
		return nil
	}
	offsets := make([]uint, 0, len(members)*int(f.hashes))
	for _, m := range members {
		offsets = append(offsets, f.locations(m)...)
	}
	return f.bits.set(ctx, offsets)
}

// Exists reports whether member may have been added.
func (f *Filter) Exists(ctx context.Context, member []byte) (bool, error) {
	return f.bits.test(ctx, f.locations(member))
}

// Reset drops every member.
func (f *Filter) Reset(ctx context.Context) error {
	return f.bits.clear(ctx)
}
