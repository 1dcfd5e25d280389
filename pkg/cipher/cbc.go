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

package cipher

import "github.com/jeremyhahn/go-libcrypto/pkg/backend"

const cbcBlockSize = 16

// CBC is a block-aligned AES-CBC engine. Padding is the caller's concern:
// every input must be a whole number of blocks, and output length always
// equals input length. Unlike the AEAD engines nothing is buffered or
// deferred.
//
// A CBC engine is not safe for concurrent use.
type CBC struct {
	ctx         *Context
	dir         backend.Direction
	initialized bool
}

// NewCBC allocates a CBC engine with its own native context on b.
func NewCBC(b backend.Backend) (*CBC, error) {
	ctx, err := NewContext(b)
	if err != nil {
		return nil, err
	}
	return &CBC{ctx: ctx}, nil
}

// Destroy releases the native context. Idempotent.
func (c *CBC) Destroy() error { return c.ctx.Destroy() }

// Init binds key, IV and direction. Keys of 16, 24 or 32 bytes select the
// AES variant; the IV is one block.
func (c *CBC) Init(dir backend.Direction, key, iv []byte) error {
	handle, err := c.ctx.Handle()
	if err != nil {
		return err
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return ErrInvalidKeySize
	}
	if len(iv) != cbcBlockSize {
		return ErrInvalidNonceSize
	}
	if err := c.ctx.Backend().CBCInit(handle, dir, key, iv); err != nil {
		return err
	}
	c.dir = dir
	c.initialized = true
	return nil
}

func (c *CBC) process(in, out []byte, final bool) (int, error) {
	handle, err := c.ctx.Handle()
	if err != nil {
		return 0, err
	}
	if !c.initialized {
		return 0, ErrNotInitialized
	}
	if len(in)%cbcBlockSize != 0 {
		return 0, ErrBlockAlignment
	}
	if len(out) < len(in) {
		return 0, ErrOutputTooSmall
	}
	if final && c.dir == backend.DirectionEncrypt {
		return c.ctx.Backend().CBCFinalEncrypt(handle, in, out)
	}
	return c.ctx.Backend().CBCUpdate(handle, in, out)
}

// Update processes whole blocks of in into out and returns bytes written.
func (c *CBC) Update(in, out []byte) (int, error) {
	return c.process(in, out, false)
}

// Finalize processes the last blocks. The engine stays initialized with
// its chained IV state; callers normally re-Init before the next message.
func (c *CBC) Finalize(in, out []byte) (int, error) {
	return c.process(in, out, true)
}

// OutputSize returns the bytes produced for inputLen input bytes.
func (c *CBC) OutputSize(inputLen int) int { return inputLen }
