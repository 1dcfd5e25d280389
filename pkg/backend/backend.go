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

// Package backend defines the call boundary between the managed cipher
// engines and a native cryptographic backend.
//
// A Backend is a thin, stateless-looking surface over a runtime-loaded
// libcrypto: cipher contexts are opaque handles owned by the caller, and
// every operation executes synchronously on the caller's goroutine. The
// production implementation lives in pkg/backend/openssl; pkg/backend/mocks
// provides a pure-Go implementation for tests.
//
// The interface deliberately mirrors the native entry points one to one
// (one-shot GCM, stateful ChaCha20, stateful CBC, copyable digests) rather
// than presenting a high-level AEAD API. The higher-level protocol rules
// (AAD ordering, buffer-until-verified decryption, nonce hygiene) belong to
// the engines in pkg/cipher, not to implementations of this interface.
package backend

// CipherHandle identifies one native cipher context. Handles are only
// meaningful to the Backend that issued them.
type CipherHandle uintptr

// DigestHandle identifies one native digest context.
type DigestHandle uintptr

// AlgorithmFamily selects the cipher algorithm bound to a context.
type AlgorithmFamily int

const (
	FamilyCBC AlgorithmFamily = iota
	FamilyGCM
	FamilyChaCha20
	FamilyChaCha20Poly1305
)

// String returns the canonical name of the algorithm family.
func (f AlgorithmFamily) String() string {
	switch f {
	case FamilyCBC:
		return "AES-CBC"
	case FamilyGCM:
		return "AES-GCM"
	case FamilyChaCha20:
		return "ChaCha20"
	case FamilyChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return "unknown"
	}
}

// Direction is the data flow of a cipher operation.
type Direction int

const (
	DirectionUnset Direction = iota
	DirectionEncrypt
	DirectionDecrypt
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionEncrypt:
		return "encrypt"
	case DirectionDecrypt:
		return "decrypt"
	default:
		return "unset"
	}
}

// ChaChaMode selects the ChaCha20 variant a context is initialized for.
// The values match the native convention: 0 decrypt-AEAD, 1 encrypt-AEAD,
// 2 keystream-only.
type ChaChaMode int

const (
	ChaChaModePoly1305Decrypt ChaChaMode = 0
	ChaChaModePoly1305Encrypt ChaChaMode = 1
	ChaChaModeStream          ChaChaMode = 2
)

// DigestAlgorithm selects the hash bound to a digest context.
type DigestAlgorithm int

const (
	DigestSHA1 DigestAlgorithm = iota
	DigestSHA224
	DigestSHA256
	DigestSHA384
	DigestSHA512
)

// Size returns the digest output length in bytes.
func (a DigestAlgorithm) Size() int {
	switch a {
	case DigestSHA1:
		return 20
	case DigestSHA224:
		return 28
	case DigestSHA256:
		return 32
	case DigestSHA384:
		return 48
	case DigestSHA512:
		return 64
	default:
		return 0
	}
}

// Backend is one loaded native cryptographic library. Implementations are
// safe for concurrent use across distinct handles; a single handle must not
// be driven by two goroutines at once.
type Backend interface {
	// Version reports the backend's version in the ordered numeric
	// encoding used for range comparisons (see openssl.VersionCode).
	Version() uint64

	// VersionText reports the backend's human-readable version banner.
	VersionText() string

	// FIPS reports whether the backend operates in FIPS mode.
	FIPS() bool

	// CreateCipher allocates a native cipher context. The context carries
	// no algorithm until first initialization and may be re-initialized
	// any number of times before destruction.
	CreateCipher() (CipherHandle, error)

	// DestroyCipher releases a cipher context. Destroying an already
	// destroyed or zero handle is a no-op.
	DestroyCipher(h CipherHandle) error

	// CBCInit binds an AES-CBC key and IV to the context. The key length
	// (16, 24 or 32 bytes) selects the AES variant. Padding is disabled;
	// callers supply block-aligned input.
	CBCInit(h CipherHandle, dir Direction, key, iv []byte) error

	// CBCUpdate processes len(in) bytes into out and returns the number
	// of bytes written. out must hold at least len(in) bytes.
	CBCUpdate(h CipherHandle, in, out []byte) (int, error)

	// CBCFinalEncrypt processes the final input bytes and completes the
	// operation. Input must remain block aligned.
	CBCFinalEncrypt(h CipherHandle, in, out []byte) (int, error)

	// GCMEncrypt performs a one-shot AES-GCM encryption on the context:
	// ciphertext for in is written to out, followed immediately by the
	// tagLen-byte authentication tag. out must hold len(in)+tagLen bytes.
	// Returns the ciphertext length excluding the tag. freshSelection
	// forces the backend to re-run algorithm selection (key length
	// changed); freshIVLen signals a changed IV length.
	GCMEncrypt(h CipherHandle, key, iv, in, out, aad []byte, tagLen int, freshSelection, freshIVLen bool) (int, error)

	// GCMDecrypt performs a one-shot AES-GCM decryption on the context.
	// in holds ciphertext followed by the tagLen-byte tag. On successful
	// verification the plaintext is written to out and its length
	// returned. On tag mismatch ErrTagMismatch is returned and out is
	// left unwritten.
	GCMDecrypt(h CipherHandle, key, iv, in, out, aad []byte, tagLen int, freshSelection, freshIVLen bool) (int, error)

	// ChaCha20Init binds a ChaCha20 key and IV to the context for the
	// given mode. For ChaChaModeStream the IV is 16 bytes: a 4-byte
	// little-endian initial block counter followed by the 12-byte nonce.
	// For the Poly1305 modes the IV is the 12-byte nonce.
	ChaCha20Init(h CipherHandle, mode ChaChaMode, iv, key []byte) error

	// ChaCha20Update streams len(in) bytes through the context into out.
	// aad, if non-empty, is authenticated before the data (AEAD modes
	// only; the engines flush it exactly once). Returns bytes written.
	ChaCha20Update(h CipherHandle, in, out, aad []byte) (int, error)

	// ChaCha20FinalEncrypt completes an AEAD encryption and writes the
	// tagLen-byte tag to out. Returns the number of bytes written.
	ChaCha20FinalEncrypt(h CipherHandle, out []byte, tagLen int) (int, error)

	// ChaCha20FinalDecrypt completes an AEAD decryption: in holds the
	// buffered ciphertext followed by the tagLen-byte tag, aad is the
	// complete associated data. On success the plaintext is written to
	// out and its length returned; on mismatch ErrTagMismatch with out
	// left unwritten.
	ChaCha20FinalDecrypt(h CipherHandle, in, out, aad []byte, tagLen int) (int, error)

	// CreateDigest allocates a native digest context initialized for alg.
	CreateDigest(alg DigestAlgorithm) (DigestHandle, error)

	// DestroyDigest releases a digest context; no-op for zero handles.
	DestroyDigest(h DigestHandle) error

	// DigestCopy overwrites dst's internal state with a copy of src's.
	// Both contexts must be bound to the same algorithm.
	DigestCopy(dst, src DigestHandle) error

	// DigestUpdate absorbs p into the digest state.
	DigestUpdate(h DigestHandle, p []byte) error

	// DigestFinal writes the digest value to out and returns its length.
	// The context's state is unspecified afterward; callers restore it
	// with DigestReset or DigestCopy before absorbing more input.
	DigestFinal(h DigestHandle, out []byte) (int, error)

	// DigestReset discards absorbed input, re-entering the initial state.
	DigestReset(h DigestHandle) error

	// Close releases process-wide resources held by the backend (legacy
	// lock arrays, the library handle). Idempotent.
	Close() error
}
