// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-libcrypto.
//
// go-libcrypto is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package digest provides a native-backed hash over the backend's digest
// contexts. Each Digest keeps a pristine pre-initialized context next to
// the live one; resetting copies the pristine state over the live state
// instead of re-running the backend's initialization sequence, which is
// materially cheaper when a digest is reused across many messages.
package digest

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
)

// ErrUnusable is returned after a state-restore failure has poisoned the
// digest. A poisoned digest cannot be recovered; allocate a new one.
var ErrUnusable = errors.New("digest: context poisoned and destroyed")

type digestRelease struct {
	backend  backend.Backend
	live     backend.DigestHandle
	pristine backend.DigestHandle
}

// Digest is a reusable native-backed hash. Not safe for concurrent use.
type Digest struct {
	b        backend.Backend
	alg      backend.DigestAlgorithm
	live     backend.DigestHandle
	pristine backend.DigestHandle

	destroyed atomic.Bool
	cleanup   runtime.Cleanup
}

// New allocates a digest for alg, with its pristine shadow context.
func New(b backend.Backend, alg backend.DigestAlgorithm) (*Digest, error) {
	live, err := b.CreateDigest(alg)
	if err != nil {
		return nil, err
	}
	pristine, err := b.CreateDigest(alg)
	if err != nil {
		_ = b.DestroyDigest(live)
		return nil, err
	}
	d := &Digest{b: b, alg: alg, live: live, pristine: pristine}
	d.cleanup = runtime.AddCleanup(d, func(r digestRelease) {
		_ = r.backend.DestroyDigest(r.live)
		_ = r.backend.DestroyDigest(r.pristine)
	}, digestRelease{backend: b, live: live, pristine: pristine})
	return d, nil
}

// Algorithm returns the bound hash algorithm.
func (d *Digest) Algorithm() backend.DigestAlgorithm { return d.alg }

// Size returns the digest length in bytes.
func (d *Digest) Size() int { return d.alg.Size() }

// Write absorbs p into the running hash. Implements io.Writer.
func (d *Digest) Write(p []byte) (int, error) {
	if d.destroyed.Load() {
		return 0, ErrUnusable
	}
	if err := d.b.DigestUpdate(d.live, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sum finalizes the hash, returns its value and resets the digest for the
// next message by restoring the pristine state. A failed restore poisons
// the digest: both contexts are destroyed and every later call returns
// ErrUnusable.
func (d *Digest) Sum() ([]byte, error) {
	if d.destroyed.Load() {
		return nil, ErrUnusable
	}
	out := make([]byte, d.alg.Size())
	n, err := d.b.DigestFinal(d.live, out)
	if err != nil {
		return nil, err
	}
	if err := d.b.DigestCopy(d.live, d.pristine); err != nil {
		d.poison()
		return nil, fmt.Errorf("digest: state restore failed: %w", ErrUnusable)
	}
	return out[:n], nil
}

// Reset discards absorbed input by restoring the pristine state.
func (d *Digest) Reset() error {
	if d.destroyed.Load() {
		return ErrUnusable
	}
	if err := d.b.DigestCopy(d.live, d.pristine); err != nil {
		d.poison()
		return fmt.Errorf("digest: state restore failed: %w", ErrUnusable)
	}
	return nil
}

// Clone returns an independent digest carrying a copy of the current
// running state. The original is unaffected, even on failure.
func (d *Digest) Clone() (*Digest, error) {
	if d.destroyed.Load() {
		return nil, ErrUnusable
	}
	dup, err := New(d.b, d.alg)
	if err != nil {
		return nil, err
	}
	if err := d.b.DigestCopy(dup.live, d.live); err != nil {
		_ = dup.Destroy()
		return nil, err
	}
	return dup, nil
}

// Destroy releases both native contexts. Idempotent.
func (d *Digest) Destroy() error {
	if !d.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	d.cleanup.Stop()
	err := d.b.DestroyDigest(d.live)
	if err2 := d.b.DestroyDigest(d.pristine); err == nil {
		err = err2
	}
	return err
}

func (d *Digest) poison() {
	if d.destroyed.CompareAndSwap(false, true) {
		d.cleanup.Stop()
		_ = d.b.DestroyDigest(d.live)
		_ = d.b.DestroyDigest(d.pristine)
	}
}
