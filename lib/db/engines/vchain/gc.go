package vchain

import (
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/db/engines/vchain/internal"
	"time"
)

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts one collector goroutine per shard.
// if the GC is already running, this function does nothing
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) startGC() {
	v.gcMu.Lock()
	defer v.gcMu.Unlock()
	if v.gcRunning {
		return
	}
	v.gcRunning = true

	v.gcWg.Add(len(v.shards))
	for _, shard := range v.shards {
		go func(s *internal.Shard) {
			defer v.gcWg.Done()
			v.collectShard(s)
		}(shard)
	}
}

// stopGC stops the collectors and waits until they returned. It reports whether the gc
// was running.
// The event queues of the current shards are closed, so the gc of these shards can't be
// started again. Load creates new shards and restarts it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) stopGC() (stopped bool) {
	v.gcMu.Lock()
	defer v.gcMu.Unlock()
	if !v.gcRunning {
		return false
	}
	v.gcRunning = false

	for _, shard := range v.shards {
		shard.Events.Close()
	}
	v.gcWg.Wait()
	return true
}

// collectShard is the collection loop of one shard. It owns shard.Pending.
// WARNING: this method should never be called directly! use startGC() and stopGC()
//
// Thread-safety: This function is not thread-safe!
func (v *vchainImpl) collectShard(shard *internal.Shard) {
	gcTimer := time.NewTimer(v.opts.GCInterval)
	defer gcTimer.Stop()

	for {
		gcTimer.Reset(v.opts.GCInterval)

		endLoop := false
		for !endLoop {
			select {
			case event, ok := <-shard.Events.Recv():
				if !ok {
					return
				}

				switch event.Type {
				case internal.EventTPublish, internal.EventTDelete:
					// a chain is only tracked once, with its lowest collectable generation
					shard.Pending.AddItemIfLower(event.Key, event.Gen)
				default:
					panic(fmt.Sprintf("unknown event %s", event))
				}

			case <-gcTimer.C:
				endLoop = true
			}
		}

		/*
			Note: the horizon is computed once per cycle. Chains that become collectable
			while the cycle runs are handled in the next one.
		*/
		horizon := v.collectionHorizon()

		for {
			item, exists := shard.Pending.Peek()
			if !exists || item.Priority > horizon {
				break
			}
			shard.Pending.PopItem()

			next, ok := v.compactKey(shard, item.Key, horizon)
			if ok {
				// the chain can shrink again once the horizon passes next
				shard.Pending.AddItemIfLower(item.Key, next)
			}
		}

		shard.PendingLen.Store(int64(shard.Pending.Len()))
	}
}

// compactKey compacts the chain of key against horizon. A chain that only held
// collectable versions is removed from the shard. It returns the next generation at
// which the remaining chain becomes collectable.
//
// Thread-safety: This method is thread-safe, the chain is replaced under the bucket
// lock of key so writers can't interleave.
func (v *vchainImpl) compactKey(shard *internal.Shard, key string, horizon int64) (next int64, ok bool) {
	shard.Data.Compute(key, func(chain *internal.Chain, loaded bool) (*internal.Chain, bool) {
		if !loaded {
			return chain, true
		}

		head := chain.Load()
		compacted, dropped, changed := internal.Compact(head, horizon)
		if !changed {
			next, ok = internal.NextCollectable(head)
			return chain, false
		}

		v.metrics.collectedVersions.Add(dropped)
		if compacted == nil {
			v.metrics.removedKeys.Inc()
			return chain, true
		}

		/*
			Note: Replace can't fail, writers and Refresh hold the same bucket lock.
			Readers that loaded the old head keep walking the old chain, which stays
			valid until they drop it.
		*/
		chain.Replace(head, compacted)
		next, ok = internal.NextCollectable(compacted)
		return chain, false
	})
	return next, ok
}

// Collect compacts every chain against the current horizon, independent of the
// background collector. It returns the number of dropped versions and removed keys.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (v *vchainImpl) Collect() (dropped, removed int) {
	horizon := v.collectionHorizon()

	for _, shard := range v.shards {
		var keys []string
		shard.Data.Range(func(key string, _ *internal.Chain) bool {
			keys = append(keys, key)
			return true
		})

		for _, key := range keys {
			shard.Data.Compute(key, func(chain *internal.Chain, loaded bool) (*internal.Chain, bool) {
				if !loaded {
					return chain, true
				}
				head := chain.Load()
				compacted, n, changed := internal.Compact(head, horizon)
				if !changed {
					return chain, false
				}
				dropped += n
				if compacted == nil {
					removed++
					return chain, true
				}
				chain.Replace(head, compacted)
				return chain, false
			})
		}
	}

	v.metrics.collectedVersions.Add(dropped)
	v.metrics.removedKeys.Add(removed)
	return dropped, removed
}
