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

import (
	"crypto/subtle"
	"encoding/binary"
	"math"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
)

const (
	chachaKeyLen   = 32
	chachaNonceLen = 12
	chachaTagLen   = 16

	// Data encryption starts at block 1; block 0 derives the Poly1305 key.
	chachaDefaultCounter = 1
)

// ChaCha20 is a ChaCha20 engine covering three variants behind one state
// machine: the plain keystream mode, AEAD (Poly1305) encryption and AEAD
// decryption.
//
// The variants differ in buffering. The keystream mode and AEAD
// encryption stream through the backend with no buffering; streaming
// ciphertext out before the tag exists discloses nothing. AEAD decryption
// buffers every byte until the tag verifies, so unauthenticated plaintext
// is never released. AAD is accumulated and handed to the backend exactly
// once: on the first data call when encrypting, at finalization when
// decrypting.
//
// Re-initializing with the key and nonce of the immediately preceding
// initialization fails with ErrKeyNonceReuse before any data is
// processed; an identical keystream would break confidentiality.
//
// A ChaCha20 engine is not safe for concurrent use.
type ChaCha20 struct {
	ctx  *Context
	mode backend.ChaChaMode

	initialized bool
	finalized   bool

	prevKey   []byte
	prevNonce []byte

	aad         []byte
	aadCount    uint64
	aadFlushed  bool
	dataStarted bool
	pending     []byte
}

// NewChaCha20 allocates a ChaCha20 engine with its own native context on b.
func NewChaCha20(b backend.Backend) (*ChaCha20, error) {
	ctx, err := NewContext(b)
	if err != nil {
		return nil, err
	}
	return &ChaCha20{ctx: ctx}, nil
}

// Destroy releases the native context. Idempotent.
func (c *ChaCha20) Destroy() error { return c.ctx.Destroy() }

// Init binds key, nonce and variant. The key is 32 bytes, the nonce 12.
// counter is the initial block counter for the keystream mode and ignored
// by the AEAD modes. For the encrypting variants an exact repeat of the
// previous initialization's key and nonce fails with ErrKeyNonceReuse.
func (c *ChaCha20) Init(mode backend.ChaChaMode, key, nonce []byte, counter uint32) error {
	handle, err := c.ctx.Handle()
	if err != nil {
		return err
	}
	if len(key) != chachaKeyLen {
		return ErrInvalidKeySize
	}
	if len(nonce) != chachaNonceLen {
		return ErrInvalidNonceSize
	}

	if mode != backend.ChaChaModePoly1305Decrypt && c.prevKey != nil {
		same := subtle.ConstantTimeCompare(c.prevKey, key) &
			subtle.ConstantTimeCompare(c.prevNonce, nonce)
		if same == 1 {
			return ErrKeyNonceReuse
		}
	}

	var iv []byte
	if mode == backend.ChaChaModeStream {
		iv = make([]byte, 4+chachaNonceLen)
		binary.LittleEndian.PutUint32(iv[:4], counter)
		copy(iv[4:], nonce)
	} else {
		iv = nonce
	}

	if err := c.ctx.Backend().ChaCha20Init(handle, mode, iv, key); err != nil {
		return err
	}

	c.mode = mode
	c.prevKey = append(c.prevKey[:0], key...)
	c.prevNonce = append(c.prevNonce[:0], nonce...)
	c.aad = c.aad[:0]
	c.aadCount = 0
	c.aadFlushed = false
	c.dataStarted = false
	c.pending = c.pending[:0]
	c.initialized = true
	c.finalized = false
	return nil
}

func (c *ChaCha20) checkUsable() error {
	if _, err := c.ctx.Handle(); err != nil {
		return err
	}
	if !c.initialized {
		return ErrNotInitialized
	}
	if c.finalized {
		return ErrUseAfterFinal
	}
	return nil
}

// UpdateAAD appends associated data. AEAD modes only; once data
// processing has begun the AAD is closed and further calls fail.
func (c *ChaCha20) UpdateAAD(p []byte) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	if c.mode == backend.ChaChaModeStream {
		return ErrStreamingUnsupported
	}
	if c.dataStarted {
		return ErrAADAfterData
	}
	if c.aadCount > math.MaxUint64-uint64(len(p)) {
		return ErrAADOverflow
	}
	c.aad = append(c.aad, p...)
	c.aadCount += uint64(len(p))
	return nil
}

// takeAAD hands the accumulated AAD to exactly one backend call.
func (c *ChaCha20) takeAAD() []byte {
	if c.aadFlushed {
		return nil
	}
	c.aadFlushed = true
	return c.aad
}

// Update processes in. The keystream mode and AEAD encryption write
// output immediately and return its length; AEAD decryption buffers in
// and always returns zero.
func (c *ChaCha20) Update(in, out []byte) (int, error) {
	if err := c.checkUsable(); err != nil {
		return 0, err
	}

	switch c.mode {
	case backend.ChaChaModePoly1305Decrypt:
		c.pending = append(c.pending, in...)
		if len(in) > 0 {
			c.dataStarted = true
		}
		return 0, nil

	case backend.ChaChaModePoly1305Encrypt:
		if len(out) < len(in) {
			return 0, ErrOutputTooSmall
		}
		handle, err := c.ctx.Handle()
		if err != nil {
			return 0, err
		}
		n, err := c.ctx.Backend().ChaCha20Update(handle, in, out, c.takeAAD())
		if err != nil {
			return 0, err
		}
		c.dataStarted = true
		return n, nil

	default: // keystream
		if len(out) < len(in) {
			return 0, ErrOutputTooSmall
		}
		handle, err := c.ctx.Handle()
		if err != nil {
			return 0, err
		}
		return c.ctx.Backend().ChaCha20Update(handle, in, out, nil)
	}
}

// OutputSize returns an upper bound on the bytes Finalize will write after
// consuming inputLen more bytes.
func (c *ChaCha20) OutputSize(inputLen int) int {
	switch c.mode {
	case backend.ChaChaModePoly1305Decrypt:
		total := len(c.pending) + inputLen
		if total < chachaTagLen {
			return 0
		}
		return total - chachaTagLen
	case backend.ChaChaModePoly1305Encrypt:
		return inputLen + chachaTagLen
	default:
		return inputLen
	}
}

// Finalize consumes the final chunk and completes the operation.
//
// Keystream mode: processes in and returns its length; with no input it
// is a no-op returning zero. AEAD encryption: streams in, appends the
// 16-byte tag and returns the combined length. AEAD decryption: the
// buffered input must be at least one tag long (ErrTagTooShort, reported
// before any backend call); on verification the plaintext is written and
// its length returned, on mismatch ErrTagMismatch and nothing is written.
// The engine then requires Init before further use.
func (c *ChaCha20) Finalize(in, out []byte) (int, error) {
	if err := c.checkUsable(); err != nil {
		return 0, err
	}
	handle, err := c.ctx.Handle()
	if err != nil {
		return 0, err
	}

	switch c.mode {
	case backend.ChaChaModePoly1305Decrypt:
		c.pending = append(c.pending, in...)
		if len(c.pending) < chachaTagLen {
			c.finalized = true
			return 0, ErrTagTooShort
		}
		ptLen := len(c.pending) - chachaTagLen
		if len(out) < ptLen {
			return 0, ErrOutputTooSmall
		}
		// Scratch buffer keeps the caller's output untouched when the
		// tag check fails.
		scratch := make([]byte, ptLen)
		n, err := c.ctx.Backend().ChaCha20FinalDecrypt(handle, c.pending, scratch, c.takeAAD(), chachaTagLen)
		c.finalized = true
		c.pending = c.pending[:0]
		if err != nil {
			return 0, err
		}
		return copy(out, scratch[:n]), nil

	case backend.ChaChaModePoly1305Encrypt:
		if len(out) < len(in)+chachaTagLen {
			return 0, ErrOutputTooSmall
		}
		n, err := c.ctx.Backend().ChaCha20Update(handle, in, out, c.takeAAD())
		if err != nil {
			return 0, err
		}
		tagN, err := c.ctx.Backend().ChaCha20FinalEncrypt(handle, out[n:], chachaTagLen)
		c.finalized = true
		if err != nil {
			return 0, err
		}
		return n + tagN, nil

	default: // keystream
		if len(in) == 0 {
			c.finalized = true
			return 0, nil
		}
		if len(out) < len(in) {
			return 0, ErrOutputTooSmall
		}
		n, err := c.ctx.Backend().ChaCha20Update(handle, in, out, nil)
		c.finalized = true
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}
