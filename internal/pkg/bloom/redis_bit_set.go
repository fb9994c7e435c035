package bloom

import (
	"context"
	"errors"
	"strconv"

	"imagescan/internal/pkg/redis"
)

// redisBitSet stores the filter bits in one Redis string. Both scripts read
// the offsets from ARGV and touch only KEYS[1].
type redisBitSet struct {
	store redis.Cache
	key   string
	size  uint
}

func newRedisBitSet(store redis.Cache, key string, size uint) *redisBitSet {
	return &redisBitSet{store: store, key: key, size: size}
}

func (r *redisBitSet) args(offsets []uint) ([]string, error) {
	out := make([]string, len(offsets))
	for i, o := range offsets {
		if o >= r.size {
			return nil, ErrTooLargeOffset
		}
		out[i] = strconv.FormatUint(uint64(o), 10)
	}
	return out, nil
}

// test reports whether every offset is set. A missing key reads as unset.
func (r *redisBitSet) test(ctx context.Context, offsets []uint) (bool, error) {
	args, err := r.args(offsets)
	if err != nil {
		return false, err
	}
	resp, err := r.store.ScriptRun(ctx, getScript, []string{r.key}, args)
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	n, _ := resp.(int64)
	return n == 1, nil
}

func (r *redisBitSet) set(ctx context.Context, offsets []uint) error {
	args, err := r.args(offsets)
	if err != nil {
		return err
	}
	// The script returns nothing, which the client reports as redis.Nil.
	if _, err := r.store.ScriptRun(ctx, setScript, []string{r.key}, args); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (r *redisBitSet) clear(ctx context.Context) error {
	_, err := r.store.Del(ctx, r.key)
	return err
}
