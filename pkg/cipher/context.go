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

// Package cipher implements the managed cipher engines over a native
// backend: AES-GCM and ChaCha20-Poly1305 AEAD, the ChaCha20 keystream
// mode, and block-aligned AES-CBC. The engines own the protocol rules
// the backend does not enforce: associated data ordering, deferred or
// buffered processing, tag atomicity on decryption, and nonce hygiene.
package cipher

import (
	"runtime"
	"sync/atomic"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
)

// contextRelease carries what the cleanup needs without keeping the
// Context itself reachable.
type contextRelease struct {
	backend backend.Backend
	handle  backend.CipherHandle
}

// Context owns one native cipher context for the lifetime of an engine.
// Destroy releases it deterministically; a GC cleanup backstops callers
// that drop an engine without destroying it, so an unreachable engine
// never leaks native memory.
type Context struct {
	backend   backend.Backend
	handle    backend.CipherHandle
	destroyed atomic.Bool
	cleanup   runtime.Cleanup
}

// NewContext allocates a native cipher context on b.
func NewContext(b backend.Backend) (*Context, error) {
	h, err := b.CreateCipher()
	if err != nil {
		return nil, err
	}
	c := &Context{backend: b, handle: h}
	c.cleanup = runtime.AddCleanup(c, func(r contextRelease) {
		_ = r.backend.DestroyCipher(r.handle)
	}, contextRelease{backend: b, handle: h})
	return c, nil
}

// Handle returns the native handle, or ErrContextDestroyed.
func (c *Context) Handle() (backend.CipherHandle, error) {
	if c.destroyed.Load() {
		return 0, ErrContextDestroyed
	}
	return c.handle, nil
}

// Backend returns the backend the context was allocated on.
func (c *Context) Backend() backend.Backend { return c.backend }

// Destroy releases the native context. Idempotent: the first call wins,
// later calls and the GC cleanup are no-ops.
func (c *Context) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	c.cleanup.Stop()
	return c.backend.DestroyCipher(c.handle)
}
