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

// Package mocks provides a pure-Go backend.Backend for tests. It
// reproduces the native call surface faithfully enough that the cipher
// engines and digest helper run unmodified against it, and it counts
// calls per operation so tests can assert when the backend is and is not
// invoked.
package mocks

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"sync"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
)

type cipherState struct {
	family backend.AlgorithmFamily

	// CBC
	block cipher.BlockMode

	// ChaCha20
	chachaMode backend.ChaChaMode
	stream     *chacha20.Cipher
	key        []byte
	nonce      []byte
	plaintext  []byte
	aad        []byte
}

type digestState struct {
	alg backend.DigestAlgorithm
	h   hash.Hash
}

// Backend is an in-memory stand-in for a loaded native library.
type Backend struct {
	// Banner and VersionNum are reported verbatim; FIPSMode toggles the
	// FIPS probe result.
	Banner     string
	VersionNum uint64
	FIPSMode   bool

	mu      sync.Mutex
	next    uintptr
	ciphers map[backend.CipherHandle]*cipherState
	digests map[backend.DigestHandle]*digestState
	closed  bool
	calls   map[string]int
}

var _ backend.Backend = (*Backend)(nil)

// New returns a mock backend reporting a modern version banner.
func New() *Backend {
	return &Backend{
		Banner:     "OpenSSL 3.0.13 30 Jan 2024 (mock)",
		VersionNum: 0x3_00_0D_00_0,
		ciphers:    make(map[backend.CipherHandle]*cipherState),
		digests:    make(map[backend.DigestHandle]*digestState),
		calls:      make(map[string]int),
	}
}

// Calls reports how many times the named operation ran.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *Backend) count(op string) {
	b.mu.Lock()
	b.calls[op]++
	b.mu.Unlock()
}

// Version implements backend.Backend.
func (b *Backend) Version() uint64 { return b.VersionNum }

// VersionText implements backend.Backend.
func (b *Backend) VersionText() string { return b.Banner }

// FIPS implements backend.Backend.
func (b *Backend) FIPS() bool { return b.FIPSMode }

// CreateCipher implements backend.Backend.
func (b *Backend) CreateCipher() (backend.CipherHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, backend.ErrClosed
	}
	b.calls["CreateCipher"]++
	b.next++
	h := backend.CipherHandle(b.next)
	b.ciphers[h] = &cipherState{}
	return h, nil
}

// DestroyCipher implements backend.Backend.
func (b *Backend) DestroyCipher(h backend.CipherHandle) error {
	if h == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ciphers[h]; !ok {
		return nil
	}
	b.calls["DestroyCipher"]++
	delete(b.ciphers, h)
	return nil
}

func (b *Backend) cipherState(h backend.CipherHandle) (*cipherState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}
	st, ok := b.ciphers[h]
	if !ok {
		return nil, backend.ErrInvalidHandle
	}
	return st, nil
}

// CBCInit implements backend.Backend.
func (b *Backend) CBCInit(h backend.CipherHandle, dir backend.Direction, key, iv []byte) error {
	b.count("CBCInit")
	st, err := b.cipherState(h)
	if err != nil {
		return err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return backend.ErrInvalidKeySize
	}
	st.family = backend.FamilyCBC
	if dir == backend.DirectionEncrypt {
		st.block = cipher.NewCBCEncrypter(block, iv)
	} else {
		st.block = cipher.NewCBCDecrypter(block, iv)
	}
	return nil
}

// CBCUpdate implements backend.Backend.
func (b *Backend) CBCUpdate(h backend.CipherHandle, in, out []byte) (int, error) {
	b.count("CBCUpdate")
	st, err := b.cipherState(h)
	if err != nil {
		return 0, err
	}
	if st.block == nil {
		return 0, fmt.Errorf("mocks: cbc update before init: %w", backend.ErrBackendFailure)
	}
	st.block.CryptBlocks(out[:len(in)], in)
	return len(in), nil
}

// CBCFinalEncrypt implements backend.Backend.
func (b *Backend) CBCFinalEncrypt(h backend.CipherHandle, in, out []byte) (int, error) {
	b.count("CBCFinalEncrypt")
	st, err := b.cipherState(h)
	if err != nil {
		return 0, err
	}
	if st.block == nil {
		return 0, fmt.Errorf("mocks: cbc final before init: %w", backend.ErrBackendFailure)
	}
	st.block.CryptBlocks(out[:len(in)], in)
	return len(in), nil
}

func gcmFor(key, iv []byte, tagLen int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, backend.ErrInvalidKeySize
	}
	if len(iv) != 12 {
		return nil, errors.New("mocks: gcm supports 12-byte nonces only")
	}
	return cipher.NewGCMWithTagSize(block, tagLen)
}

// GCMEncrypt implements backend.Backend.
func (b *Backend) GCMEncrypt(h backend.CipherHandle, key, iv, in, out, aad []byte, tagLen int, freshSelection, freshIVLen bool) (int, error) {
	b.count("GCMEncrypt")
	if _, err := b.cipherState(h); err != nil {
		return 0, err
	}
	aead, err := gcmFor(key, iv, tagLen)
	if err != nil {
		return 0, err
	}
	sealed := aead.Seal(nil, iv, in, aad)
	if len(out) < len(sealed) {
		return 0, fmt.Errorf("mocks: gcm encrypt: output buffer too small: %w", backend.ErrBackendFailure)
	}
	copy(out, sealed)
	return len(sealed) - tagLen, nil
}

// GCMDecrypt implements backend.Backend.
func (b *Backend) GCMDecrypt(h backend.CipherHandle, key, iv, in, out, aad []byte, tagLen int, freshSelection, freshIVLen bool) (int, error) {
	b.count("GCMDecrypt")
	if _, err := b.cipherState(h); err != nil {
		return 0, err
	}
	aead, err := gcmFor(key, iv, tagLen)
	if err != nil {
		return 0, err
	}
	plain, err := aead.Open(nil, iv, in, aad)
	if err != nil {
		return 0, backend.ErrTagMismatch
	}
	copy(out, plain)
	return len(plain), nil
}

// ChaCha20Init implements backend.Backend.
func (b *Backend) ChaCha20Init(h backend.CipherHandle, mode backend.ChaChaMode, iv, key []byte) error {
	b.count("ChaCha20Init")
	st, err := b.cipherState(h)
	if err != nil {
		return err
	}
	if len(key) != chacha20.KeySize {
		return backend.ErrInvalidKeySize
	}

	switch mode {
	case backend.ChaChaModeStream:
		if len(iv) != 16 {
			return fmt.Errorf("mocks: chacha20 stream iv must be 16 bytes: %w", backend.ErrBackendFailure)
		}
		counter := binary.LittleEndian.Uint32(iv[:4])
		stream, err := chacha20.NewUnauthenticatedCipher(key, iv[4:])
		if err != nil {
			return err
		}
		stream.SetCounter(counter)
		st.stream = stream

	case backend.ChaChaModePoly1305Encrypt:
		if len(iv) != chacha20poly1305.NonceSize {
			return fmt.Errorf("mocks: chacha20-poly1305 nonce must be 12 bytes: %w", backend.ErrBackendFailure)
		}
		// Block counter 1: block 0 is consumed by the Poly1305 key
		// derivation, data starts at block 1.
		stream, err := chacha20.NewUnauthenticatedCipher(key, iv)
		if err != nil {
			return err
		}
		stream.SetCounter(1)
		st.stream = stream
		st.key = append([]byte(nil), key...)
		st.nonce = append([]byte(nil), iv...)
		st.plaintext = nil
		st.aad = nil

	case backend.ChaChaModePoly1305Decrypt:
		if len(iv) != chacha20poly1305.NonceSize {
			return fmt.Errorf("mocks: chacha20-poly1305 nonce must be 12 bytes: %w", backend.ErrBackendFailure)
		}
		st.stream = nil
		st.key = append([]byte(nil), key...)
		st.nonce = append([]byte(nil), iv...)

	default:
		return fmt.Errorf("mocks: unknown chacha mode %d: %w", mode, backend.ErrBackendFailure)
	}

	st.family = backend.FamilyChaCha20
	st.chachaMode = mode
	return nil
}

// ChaCha20Update implements backend.Backend.
func (b *Backend) ChaCha20Update(h backend.CipherHandle, in, out, aad []byte) (int, error) {
	b.count("ChaCha20Update")
	st, err := b.cipherState(h)
	if err != nil {
		return 0, err
	}
	switch st.chachaMode {
	case backend.ChaChaModeStream:
		st.stream.XORKeyStream(out[:len(in)], in)
		return len(in), nil
	case backend.ChaChaModePoly1305Encrypt:
		st.aad = append(st.aad, aad...)
		st.plaintext = append(st.plaintext, in...)
		st.stream.XORKeyStream(out[:len(in)], in)
		return len(in), nil
	default:
		return 0, fmt.Errorf("mocks: chacha20 streaming update on decrypt context: %w", backend.ErrBackendFailure)
	}
}

// ChaCha20FinalEncrypt implements backend.Backend.
func (b *Backend) ChaCha20FinalEncrypt(h backend.CipherHandle, out []byte, tagLen int) (int, error) {
	b.count("ChaCha20FinalEncrypt")
	st, err := b.cipherState(h)
	if err != nil {
		return 0, err
	}
	if st.chachaMode != backend.ChaChaModePoly1305Encrypt {
		return 0, fmt.Errorf("mocks: final on non-encrypt chacha context: %w", backend.ErrBackendFailure)
	}
	if tagLen != chacha20poly1305.Overhead {
		return 0, fmt.Errorf("mocks: chacha20-poly1305 tag must be 16 bytes: %w", backend.ErrBackendFailure)
	}
	aead, err := chacha20poly1305.New(st.key)
	if err != nil {
		return 0, err
	}
	sealed := aead.Seal(nil, st.nonce, st.plaintext, st.aad)
	tag := sealed[len(sealed)-tagLen:]
	if len(out) < tagLen {
		return 0, fmt.Errorf("mocks: tag buffer too small: %w", backend.ErrBackendFailure)
	}
	copy(out, tag)
	return tagLen, nil
}

// ChaCha20FinalDecrypt implements backend.Backend.
func (b *Backend) ChaCha20FinalDecrypt(h backend.CipherHandle, in, out, aad []byte, tagLen int) (int, error) {
	b.count("ChaCha20FinalDecrypt")
	st, err := b.cipherState(h)
	if err != nil {
		return 0, err
	}
	if st.chachaMode != backend.ChaChaModePoly1305Decrypt {
		return 0, fmt.Errorf("mocks: final decrypt on non-decrypt chacha context: %w", backend.ErrBackendFailure)
	}
	if tagLen != chacha20poly1305.Overhead {
		return 0, fmt.Errorf("mocks: chacha20-poly1305 tag must be 16 bytes: %w", backend.ErrBackendFailure)
	}
	aead, err := chacha20poly1305.New(st.key)
	if err != nil {
		return 0, err
	}
	plain, err := aead.Open(nil, st.nonce, in, aad)
	if err != nil {
		return 0, backend.ErrTagMismatch
	}
	copy(out, plain)
	return len(plain), nil
}

func newHash(alg backend.DigestAlgorithm) (hash.Hash, error) {
	switch alg {
	case backend.DigestSHA1:
		return sha1.New(), nil
	case backend.DigestSHA224:
		return sha256.New224(), nil
	case backend.DigestSHA256:
		return sha256.New(), nil
	case backend.DigestSHA384:
		return sha512.New384(), nil
	case backend.DigestSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("mocks: unknown digest algorithm %d: %w", alg, backend.ErrBackendFailure)
	}
}

// CreateDigest implements backend.Backend.
func (b *Backend) CreateDigest(alg backend.DigestAlgorithm) (backend.DigestHandle, error) {
	h, err := newHash(alg)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, backend.ErrClosed
	}
	b.calls["CreateDigest"]++
	b.next++
	handle := backend.DigestHandle(b.next)
	b.digests[handle] = &digestState{alg: alg, h: h}
	return handle, nil
}

// DestroyDigest implements backend.Backend.
func (b *Backend) DestroyDigest(h backend.DigestHandle) error {
	if h == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.digests[h]; !ok {
		return nil
	}
	b.calls["DestroyDigest"]++
	delete(b.digests, h)
	return nil
}

func (b *Backend) digestState(h backend.DigestHandle) (*digestState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, backend.ErrClosed
	}
	st, ok := b.digests[h]
	if !ok {
		return nil, backend.ErrInvalidHandle
	}
	return st, nil
}

// DigestCopy implements backend.Backend. State transfer goes through the
// hash's binary marshaling, the same way a native copy clones context
// internals.
func (b *Backend) DigestCopy(dst, src backend.DigestHandle) error {
	b.count("DigestCopy")
	dstSt, err := b.digestState(dst)
	if err != nil {
		return err
	}
	srcSt, err := b.digestState(src)
	if err != nil {
		return err
	}
	if dstSt.alg != srcSt.alg {
		return fmt.Errorf("mocks: digest copy across algorithms: %w", backend.ErrBackendFailure)
	}
	m, ok := srcSt.h.(encoding.BinaryMarshaler)
	if !ok {
		return fmt.Errorf("mocks: digest state not marshalable: %w", backend.ErrBackendFailure)
	}
	u, ok := dstSt.h.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("mocks: digest state not unmarshalable: %w", backend.ErrBackendFailure)
	}
	state, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return u.UnmarshalBinary(state)
}

// DigestUpdate implements backend.Backend.
func (b *Backend) DigestUpdate(h backend.DigestHandle, p []byte) error {
	b.count("DigestUpdate")
	st, err := b.digestState(h)
	if err != nil {
		return err
	}
	st.h.Write(p)
	return nil
}

// DigestFinal implements backend.Backend.
func (b *Backend) DigestFinal(h backend.DigestHandle, out []byte) (int, error) {
	b.count("DigestFinal")
	st, err := b.digestState(h)
	if err != nil {
		return 0, err
	}
	sum := st.h.Sum(nil)
	if len(out) < len(sum) {
		return 0, fmt.Errorf("mocks: digest buffer too small: %w", backend.ErrBackendFailure)
	}
	copy(out, sum)
	st.h.Reset()
	return len(sum), nil
}

// DigestReset implements backend.Backend.
func (b *Backend) DigestReset(h backend.DigestHandle) error {
	b.count("DigestReset")
	st, err := b.digestState(h)
	if err != nil {
		return err
	}
	st.h.Reset()
	return nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["Close"]++
	b.closed = true
	b.ciphers = make(map[backend.CipherHandle]*cipherState)
	b.digests = make(map[backend.DigestHandle]*digestState)
	return nil
}
