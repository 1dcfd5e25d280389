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

package cipher_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
	"github.com/jeremyhahn/go-libcrypto/pkg/backend/mocks"
	"github.com/jeremyhahn/go-libcrypto/pkg/cipher"
)

var (
	ccKey   = bytes.Repeat([]byte{0x24}, 32)
	ccNonce = []byte("abcdef012345") // 12 bytes
	ccAAD   = []byte("route=7;seq=9")
	ccPlain = []byte("the quick brown fox jumps over the lazy dog")
)

func newChaCha(t *testing.T, b backend.Backend) *cipher.ChaCha20 {
	t.Helper()
	c, err := cipher.NewChaCha20(b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Destroy() })
	return c
}

func TestChaChaStreamMatchesReference(t *testing.T) {
	c := newChaCha(t, mocks.New())
	require.NoError(t, c.Init(backend.ChaChaModeStream, ccKey, ccNonce, 1))

	out := make([]byte, len(ccPlain))
	n, err := c.Update(ccPlain[:20], out)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	fn, err := c.Finalize(ccPlain[20:], out[n:])
	require.NoError(t, err)
	require.Equal(t, len(ccPlain), n+fn)

	ref, err := chacha20.NewUnauthenticatedCipher(ccKey, ccNonce)
	require.NoError(t, err)
	ref.SetCounter(1)
	want := make([]byte, len(ccPlain))
	ref.XORKeyStream(want, ccPlain)
	assert.Equal(t, want, out)
}

func TestChaChaStreamCustomCounter(t *testing.T) {
	c := newChaCha(t, mocks.New())
	require.NoError(t, c.Init(backend.ChaChaModeStream, ccKey, ccNonce, 7))

	out := make([]byte, len(ccPlain))
	n, err := c.Finalize(ccPlain, out)
	require.NoError(t, err)

	ref, err := chacha20.NewUnauthenticatedCipher(ccKey, ccNonce)
	require.NoError(t, err)
	ref.SetCounter(7)
	want := make([]byte, len(ccPlain))
	ref.XORKeyStream(want, ccPlain)
	assert.Equal(t, want, out[:n])
}

func TestChaChaPolyEncryptStreams(t *testing.T) {
	b := mocks.New()
	c := newChaCha(t, b)
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Encrypt, ccKey, ccNonce, 0))
	require.NoError(t, c.UpdateAAD(ccAAD))

	out := make([]byte, len(ccPlain)+16)
	n1, err := c.Update(ccPlain[:11], out)
	require.NoError(t, err)
	assert.Equal(t, 11, n1, "encryption streams ciphertext immediately")
	n2, err := c.Update(ccPlain[11:], out[n1:])
	require.NoError(t, err)
	n3, err := c.Finalize(nil, out[n1+n2:])
	require.NoError(t, err)
	assert.Equal(t, 16, n3, "finalize appends only the tag")

	aead, err := chacha20poly1305.New(ccKey)
	require.NoError(t, err)
	want := aead.Seal(nil, ccNonce, ccPlain, ccAAD)
	assert.Equal(t, want, out[:n1+n2+n3])
}

func TestChaChaPolyDecryptBuffers(t *testing.T) {
	b := mocks.New()
	aead, err := chacha20poly1305.New(ccKey)
	require.NoError(t, err)
	sealed := aead.Seal(nil, ccNonce, ccPlain, ccAAD)

	c := newChaCha(t, b)
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Decrypt, ccKey, ccNonce, 0))
	require.NoError(t, c.UpdateAAD(ccAAD))

	out := make([]byte, len(ccPlain))
	for i := 0; i < len(sealed); i += 7 {
		end := min(i+7, len(sealed))
		n, err := c.Update(sealed[i:end], out)
		require.NoError(t, err)
		assert.Zero(t, n, "decryption must never stream output")
	}
	assert.Zero(t, b.Calls("ChaCha20FinalDecrypt"))

	n, err := c.Finalize(nil, out)
	require.NoError(t, err)
	assert.Equal(t, ccPlain, out[:n])
}

func TestChaChaPolyTamperedInput(t *testing.T) {
	aead, err := chacha20poly1305.New(ccKey)
	require.NoError(t, err)
	sealed := aead.Seal(nil, ccNonce, ccPlain, nil)

	for _, flip := range []int{0, len(sealed) - 1} {
		tampered := append([]byte(nil), sealed...)
		tampered[flip] ^= 0x80

		c := newChaCha(t, mocks.New())
		require.NoError(t, c.Init(backend.ChaChaModePoly1305Decrypt, ccKey, ccNonce, 0))
		out := bytes.Repeat([]byte{0xee}, len(ccPlain))
		n, err := c.Finalize(tampered, out)
		require.ErrorIs(t, err, backend.ErrTagMismatch)
		assert.Zero(t, n)
		assert.Equal(t, bytes.Repeat([]byte{0xee}, len(ccPlain)), out)
	}
}

func TestChaChaPolyMismatchShieldsOutput(t *testing.T) {
	b := &leakyBackend{Backend: mocks.New(), tentative: ccPlain}

	c := newChaCha(t, b)
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Decrypt, ccKey, ccNonce, 0))
	out := bytes.Repeat([]byte{0xee}, len(ccPlain))
	n, err := c.Finalize(make([]byte, len(ccPlain)+16), out)
	require.ErrorIs(t, err, backend.ErrTagMismatch)
	assert.Zero(t, n)
	assert.Equal(t, bytes.Repeat([]byte{0xee}, len(ccPlain)), out,
		"backend output on mismatch must not reach the caller")
}

func TestChaChaKeyNonceReuseRejected(t *testing.T) {
	c := newChaCha(t, mocks.New())
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Encrypt, ccKey, ccNonce, 0))

	err := c.Init(backend.ChaChaModePoly1305Encrypt, ccKey, ccNonce, 0)
	require.ErrorIs(t, err, cipher.ErrKeyNonceReuse)

	// A fresh nonce is accepted, and the tracker then remembers it.
	nonce2 := []byte("ba9876543210")
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Encrypt, ccKey, nonce2, 0))
	require.ErrorIs(t, c.Init(backend.ChaChaModePoly1305Encrypt, ccKey, nonce2, 0), cipher.ErrKeyNonceReuse)
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Encrypt, ccKey, ccNonce, 0))
}

func TestChaChaDecryptInitAllowsRepeat(t *testing.T) {
	c := newChaCha(t, mocks.New())
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Decrypt, ccKey, ccNonce, 0))
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Decrypt, ccKey, ccNonce, 0))
}

func TestChaChaAADAfterDataRejected(t *testing.T) {
	c := newChaCha(t, mocks.New())
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Encrypt, ccKey, ccNonce, 0))

	out := make([]byte, 8)
	_, err := c.Update([]byte("12345678"), out)
	require.NoError(t, err)
	require.ErrorIs(t, c.UpdateAAD(ccAAD), cipher.ErrAADAfterData)
}

func TestChaChaStreamRejectsAAD(t *testing.T) {
	c := newChaCha(t, mocks.New())
	require.NoError(t, c.Init(backend.ChaChaModeStream, ccKey, ccNonce, 1))
	require.ErrorIs(t, c.UpdateAAD(ccAAD), cipher.ErrStreamingUnsupported)
}

func TestChaChaDecryptShorterThanTag(t *testing.T) {
	b := mocks.New()
	c := newChaCha(t, b)
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Decrypt, ccKey, ccNonce, 0))

	_, err := c.Finalize(make([]byte, 15), make([]byte, 16))
	require.ErrorIs(t, err, cipher.ErrTagTooShort)
	assert.Zero(t, b.Calls("ChaCha20FinalDecrypt"))
}

func TestChaChaUseAfterFinalize(t *testing.T) {
	c := newChaCha(t, mocks.New())
	require.NoError(t, c.Init(backend.ChaChaModeStream, ccKey, ccNonce, 1))

	out := make([]byte, len(ccPlain))
	_, err := c.Finalize(ccPlain, out)
	require.NoError(t, err)

	_, err = c.Update(ccPlain, out)
	require.ErrorIs(t, err, cipher.ErrUseAfterFinal)

	// Re-initialization with a fresh nonce re-arms the engine.
	require.NoError(t, c.Init(backend.ChaChaModeStream, ccKey, []byte("ba9876543210"), 1))
	_, err = c.Update(ccPlain, out)
	require.NoError(t, err)
}

func TestChaChaInitValidation(t *testing.T) {
	c := newChaCha(t, mocks.New())
	assert.ErrorIs(t, c.Init(backend.ChaChaModeStream, make([]byte, 16), ccNonce, 1), cipher.ErrInvalidKeySize)
	assert.ErrorIs(t, c.Init(backend.ChaChaModeStream, ccKey, make([]byte, 8), 1), cipher.ErrInvalidNonceSize)

	_, err := c.Update([]byte("x"), make([]byte, 1))
	assert.ErrorIs(t, err, cipher.ErrNotInitialized)
}

func TestChaChaOutputSize(t *testing.T) {
	c := newChaCha(t, mocks.New())
	require.NoError(t, c.Init(backend.ChaChaModeStream, ccKey, ccNonce, 1))
	assert.Equal(t, 100, c.OutputSize(100))

	require.NoError(t, c.Init(backend.ChaChaModePoly1305Encrypt, ccKey, []byte("ba9876543210"), 0))
	assert.Equal(t, 116, c.OutputSize(100))

	require.NoError(t, c.Init(backend.ChaChaModePoly1305Decrypt, ccKey, ccNonce, 0))
	assert.Equal(t, 0, c.OutputSize(10))
	out := make([]byte, 0)
	_, err := c.Update(make([]byte, 40), out)
	require.NoError(t, err)
	assert.Equal(t, 24, c.OutputSize(0))
}
