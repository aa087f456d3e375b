package service

import (
	"context"
	"hash/fnv"
	"time"

	dErrors "labelcheck/pkg/domain-errors"
)

// numLockShards bounds the lock table; applications hashing to the same
// shard serialize with each other, which is safe but slower.
const numLockShards = 128

const defaultLockTimeout = 5 * time.Second

// applicationLocks serializes mutations per application id. Each shard is a
// one-slot semaphore so waiting for it can be abandoned when ctx ends.
type applicationLocks struct {
	shards  [numLockShards]chan struct{}
	timeout time.Duration
}

func newApplicationLocks() *applicationLocks {
	l := &applicationLocks{}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

// run executes fn while holding the shard lock for applicationID. Without a
// caller deadline the wait and fn together are bounded by the lock timeout.
func (l *applicationLocks) run(ctx context.Context, applicationID string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}

	timeout := l.timeout
	if timeout == 0 {
		timeout = defaultLockTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := l.shards[shardFor(applicationID)]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out waiting for application lock")
	}
	defer func() { <-shard }()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}
	return fn(ctx)
}

func shardFor(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % numLockShards)
}
