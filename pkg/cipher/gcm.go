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
	"math"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
)

// phase is the AEAD engine lifecycle position. Transitions only move
// forward; Reset and Init re-enter phaseFresh.
type phase int

const (
	phaseFresh phase = iota
	phaseAcceptingAAD
	phaseFinalized
)

// GCM tag lengths accepted, in bytes (96 to 128 bits).
const (
	gcmMinTagLen     = 12
	gcmMaxTagLen     = 16
	gcmDefaultTagLen = 16
)

// GCM is an AES-GCM AEAD engine. Both directions defer all computation to
// Finalize: Update only accumulates, so ciphertext is produced exactly
// once with its tag, and no plaintext is ever disclosed before the tag
// verifies. The native context persists across re-initializations; the
// backend is told to rebuild its algorithm selection only when the key or
// IV length actually changes.
//
// A GCM engine is not safe for concurrent use.
type GCM struct {
	ctx *Context
	dir backend.Direction

	key    []byte
	iv     []byte
	tagLen int

	// Last lengths seen by the native context, across the engine's whole
	// lifetime. Zero means the context has never been initialized.
	boundKeyLen int
	boundIVLen  int

	phase    phase
	aad      []byte
	aadCount uint64
	data     []byte
}

// NewGCM allocates a GCM engine with its own native context on b.
func NewGCM(b backend.Backend) (*GCM, error) {
	ctx, err := NewContext(b)
	if err != nil {
		return nil, err
	}
	return &GCM{ctx: ctx, tagLen: gcmDefaultTagLen}, nil
}

// Destroy releases the native context. Idempotent.
func (g *GCM) Destroy() error { return g.ctx.Destroy() }

// Init binds key, IV, direction and tag length, clearing any accumulated
// state. Keys of 16, 24 or 32 bytes select the AES variant; the IV must be
// non-empty and the tag length between 12 and 16 bytes.
func (g *GCM) Init(dir backend.Direction, key, iv []byte, tagLen int) error {
	if _, err := g.ctx.Handle(); err != nil {
		return err
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return ErrInvalidKeySize
	}
	if len(iv) == 0 {
		return ErrInvalidNonceSize
	}
	if tagLen < gcmMinTagLen || tagLen > gcmMaxTagLen {
		return ErrInvalidTagSize
	}

	g.dir = dir
	g.key = append(g.key[:0], key...)
	g.iv = append(g.iv[:0], iv...)
	g.tagLen = tagLen
	g.clearAccumulators()
	g.phase = phaseFresh
	return nil
}

func (g *GCM) clearAccumulators() {
	g.aad = g.aad[:0]
	g.aadCount = 0
	g.data = g.data[:0]
}

// freshFlags reports whether the next backend call must re-run algorithm
// selection or rebind the IV length, and records the new lengths.
func (g *GCM) freshFlags() (freshSelection, freshIVLen bool) {
	freshSelection = g.boundKeyLen != len(g.key)
	freshIVLen = g.boundIVLen != len(g.iv)
	g.boundKeyLen = len(g.key)
	g.boundIVLen = len(g.iv)
	return freshSelection, freshIVLen
}

func (g *GCM) checkUsable() error {
	if _, err := g.ctx.Handle(); err != nil {
		return err
	}
	if g.dir == backend.DirectionUnset {
		return ErrNotInitialized
	}
	if g.phase == phaseFinalized {
		return ErrUseAfterFinal
	}
	return nil
}

// UpdateAAD appends associated data. Legal only before any Update call.
func (g *GCM) UpdateAAD(p []byte) error {
	if err := g.checkUsable(); err != nil {
		return err
	}
	if len(g.data) > 0 {
		return ErrAADAfterData
	}
	if g.aadCount > math.MaxUint64-uint64(len(p)) {
		return ErrAADOverflow
	}
	g.aad = append(g.aad, p...)
	g.aadCount += uint64(len(p))
	g.phase = phaseAcceptingAAD
	return nil
}

// Update accumulates input and always reports zero bytes produced: the
// whole computation runs at Finalize, in both directions.
func (g *GCM) Update(in []byte) (int, error) {
	if err := g.checkUsable(); err != nil {
		return 0, err
	}
	if len(in) > 0 {
		g.data = append(g.data, in...)
		g.phase = phaseAcceptingAAD
	}
	return 0, nil
}

// OutputSize returns an upper bound on the bytes Finalize will write after
// consuming inputLen more bytes.
func (g *GCM) OutputSize(inputLen int) int {
	total := len(g.data) + inputLen
	if g.dir == backend.DirectionDecrypt {
		if total < g.tagLen {
			return 0
		}
		return total - g.tagLen
	}
	return total + g.tagLen
}

// Finalize consumes the final input chunk and completes the operation.
//
// Encrypting, the ciphertext and the trailing tag are written to out and
// the combined length returned. Decrypting, the accumulated input must be
// at least one tag long (ErrTagTooShort, checked before any backend call);
// on successful verification the plaintext is written and its length
// returned, on mismatch ErrTagMismatch is returned and nothing is written.
// Either way the engine becomes finalized and requires Init or Reset.
func (g *GCM) Finalize(in, out []byte) (int, error) {
	if err := g.checkUsable(); err != nil {
		return 0, err
	}
	g.data = append(g.data, in...)

	if g.dir == backend.DirectionDecrypt && len(g.data) < g.tagLen {
		g.phase = phaseFinalized
		return 0, ErrTagTooShort
	}
	if len(out) < g.OutputSize(0) {
		return 0, ErrOutputTooSmall
	}

	handle, err := g.ctx.Handle()
	if err != nil {
		return 0, err
	}
	freshSelection, freshIVLen := g.freshFlags()

	var n int
	if g.dir == backend.DirectionEncrypt {
		var ctLen int
		ctLen, err = g.ctx.Backend().GCMEncrypt(handle, g.key, g.iv, g.data, out, g.aad, g.tagLen, freshSelection, freshIVLen)
		n = ctLen + g.tagLen
	} else {
		// The backend decrypts into a scratch buffer so a verification
		// failure cannot disturb the caller's output.
		scratch := make([]byte, g.OutputSize(0))
		n, err = g.ctx.Backend().GCMDecrypt(handle, g.key, g.iv, g.data, scratch, g.aad, g.tagLen, freshSelection, freshIVLen)
		if err == nil {
			n = copy(out, scratch[:n])
		}
	}

	g.phase = phaseFinalized
	g.clearAccumulators()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Reset clears accumulated AAD and data and re-enters the fresh phase,
// retaining the bound key and IV. This engine does not police nonce reuse;
// callers re-encrypting must rebind a fresh IV via Init first.
func (g *GCM) Reset() error {
	if _, err := g.ctx.Handle(); err != nil {
		return err
	}
	if g.dir == backend.DirectionUnset {
		return ErrNotInitialized
	}
	g.clearAccumulators()
	g.phase = phaseFresh
	return nil
}
