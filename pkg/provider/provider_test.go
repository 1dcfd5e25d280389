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

package provider

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
	"github.com/jeremyhahn/go-libcrypto/pkg/backend/mocks"
)

var (
	provKey   = bytes.Repeat([]byte{0x77}, 32)
	provIV    = []byte("0123456789ab")
	provPlain = []byte("provider boundary round trip payload")
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p := NewWithBackend(mocks.New(), nil)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProviderAvailability(t *testing.T) {
	p := newProvider(t)
	code, ok := p.IsBackendAvailable()
	require.True(t, ok)
	assert.NotZero(t, code)
	assert.False(t, p.IsFIPSBackend())
	assert.NotEmpty(t, p.VersionText())

	unavailable := NewWithBackend(nil, nil)
	_, ok = unavailable.IsBackendAvailable()
	assert.False(t, ok)
	assert.False(t, unavailable.IsFIPSBackend())
	_, err := unavailable.CreateContext(backend.FamilyGCM)
	assert.ErrorIs(t, err, backend.ErrBackendUnavailable)
}

func TestProviderGCMRoundTrip(t *testing.T) {
	p := newProvider(t)

	enc, err := p.CreateContext(backend.FamilyGCM)
	require.NoError(t, err)
	require.NoError(t, p.InitCipher(enc, InitParams{
		Direction: backend.DirectionEncrypt, Key: provKey, IV: provIV,
	}))
	require.NoError(t, p.UpdateAAD(enc, []byte("hdr")))

	size, err := p.OutputSize(enc, len(provPlain))
	require.NoError(t, err)
	sealed := make([]byte, size)
	n, err := p.Finalize(enc, provPlain, sealed)
	require.NoError(t, err)
	require.Equal(t, len(provPlain)+16, n)

	dec, err := p.CreateContext(backend.FamilyGCM)
	require.NoError(t, err)
	require.NoError(t, p.InitCipher(dec, InitParams{
		Direction: backend.DirectionDecrypt, Key: provKey, IV: provIV,
	}))
	require.NoError(t, p.UpdateAAD(dec, []byte("hdr")))
	out := make([]byte, len(provPlain))
	dn, err := p.Finalize(dec, sealed[:n], out)
	require.NoError(t, err)
	assert.Equal(t, provPlain, out[:dn])
}

func TestProviderChaChaPolyRoundTrip(t *testing.T) {
	p := newProvider(t)

	enc, err := p.CreateContext(backend.FamilyChaCha20Poly1305)
	require.NoError(t, err)
	require.NoError(t, p.InitCipher(enc, InitParams{
		Direction: backend.DirectionEncrypt, Key: provKey, IV: provIV,
	}))

	sealed := make([]byte, len(provPlain)+16)
	n, err := p.Update(enc, provPlain, sealed)
	require.NoError(t, err)
	assert.Equal(t, len(provPlain), n, "ChaCha20-Poly1305 encryption streams")
	tn, err := p.Finalize(enc, nil, sealed[n:])
	require.NoError(t, err)
	require.Equal(t, 16, tn)

	dec, err := p.CreateContext(backend.FamilyChaCha20Poly1305)
	require.NoError(t, err)
	require.NoError(t, p.InitCipher(dec, InitParams{
		Direction: backend.DirectionDecrypt, Key: provKey, IV: provIV,
	}))
	un, err := p.Update(dec, sealed, make([]byte, len(provPlain)))
	require.NoError(t, err)
	assert.Zero(t, un, "decryption buffers until the tag verifies")
	out := make([]byte, len(provPlain))
	dn, err := p.Finalize(dec, nil, out)
	require.NoError(t, err)
	assert.Equal(t, provPlain, out[:dn])
}

func TestProviderChaChaStream(t *testing.T) {
	p := newProvider(t)

	id, err := p.CreateContext(backend.FamilyChaCha20)
	require.NoError(t, err)
	require.NoError(t, p.InitCipher(id, InitParams{
		Direction: backend.DirectionEncrypt, Key: provKey, IV: provIV, Counter: 7,
	}))

	ct := make([]byte, len(provPlain))
	n, err := p.Finalize(id, provPlain, ct)
	require.NoError(t, err)
	require.Equal(t, len(provPlain), n)

	// Same counter decrypts by symmetry.
	id2, err := p.CreateContext(backend.FamilyChaCha20)
	require.NoError(t, err)
	require.NoError(t, p.InitCipher(id2, InitParams{
		Direction: backend.DirectionDecrypt, Key: provKey, IV: provIV, Counter: 7,
	}))
	out := make([]byte, len(ct))
	dn, err := p.Finalize(id2, ct, out)
	require.NoError(t, err)
	assert.Equal(t, provPlain, out[:dn])
}

func TestProviderCBC(t *testing.T) {
	p := newProvider(t)

	id, err := p.CreateContext(backend.FamilyCBC)
	require.NoError(t, err)
	iv := bytes.Repeat([]byte{0x01}, 16)
	require.NoError(t, p.InitCipher(id, InitParams{
		Direction: backend.DirectionEncrypt, Key: provKey, IV: iv,
	}))

	assert.Error(t, p.UpdateAAD(id, []byte("x")), "CBC takes no AAD")

	plain := bytes.Repeat([]byte("0123456789abcdef"), 2)
	ct := make([]byte, len(plain))
	n, err := p.Finalize(id, plain, ct)
	require.NoError(t, err)
	assert.Equal(t, len(plain), n)
}

func TestProviderDestroyContextIdempotent(t *testing.T) {
	p := newProvider(t)
	id, err := p.CreateContext(backend.FamilyGCM)
	require.NoError(t, err)

	require.NoError(t, p.DestroyContext(id))
	require.NoError(t, p.DestroyContext(id))
	require.NoError(t, p.DestroyContext(9999))

	err = p.InitCipher(id, InitParams{Direction: backend.DirectionEncrypt, Key: provKey, IV: provIV})
	assert.ErrorIs(t, err, ErrUnknownContext)
	_, err = p.Update(id, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownContext)
}

func TestProviderUnsupportedFamily(t *testing.T) {
	p := newProvider(t)
	_, err := p.CreateContext(backend.AlgorithmFamily(99))
	assert.ErrorIs(t, err, ErrUnsupportedFamily)
}

func TestProviderTagMismatchSurface(t *testing.T) {
	p := newProvider(t)

	enc, err := p.CreateContext(backend.FamilyGCM)
	require.NoError(t, err)
	require.NoError(t, p.InitCipher(enc, InitParams{
		Direction: backend.DirectionEncrypt, Key: provKey, IV: provIV,
	}))
	sealed := make([]byte, len(provPlain)+16)
	n, err := p.Finalize(enc, provPlain, sealed)
	require.NoError(t, err)
	sealed[0] ^= 0x01

	dec, err := p.CreateContext(backend.FamilyGCM)
	require.NoError(t, err)
	require.NoError(t, p.InitCipher(dec, InitParams{
		Direction: backend.DirectionDecrypt, Key: provKey, IV: provIV,
	}))
	_, err = p.Finalize(dec, sealed[:n], make([]byte, len(provPlain)))
	assert.ErrorIs(t, err, backend.ErrTagMismatch)
}

func TestProviderCloseConcurrentAvailability(t *testing.T) {
	b := mocks.New()
	p := NewWithBackend(b, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = p.IsBackendAvailable()
				_ = p.IsFIPSBackend()
				_ = p.VersionText()
			}
		}()
	}
	require.NoError(t, p.Close())
	wg.Wait()

	_, ok := p.IsBackendAvailable()
	assert.False(t, ok)
	assert.Nil(t, p.Backend())

	// A second Close must not reach the backend again.
	require.NoError(t, p.Close())
	assert.Equal(t, 1, b.Calls("Close"))
}
