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

package openssl

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// EVP_CIPHER_CTX_ctrl commands used by the cipher paths. The GCM and
// generic AEAD commands share values across every supported family.
const (
	ctrlAEADSetIVLen = 0x9
	ctrlAEADGetTag   = 0x10
	ctrlAEADSetTag   = 0x11
)

// aeadScratchSlack pads the decrypt scratch buffers so EVP_CipherFinal_ex
// always has a full block of valid memory to write into, even when the
// update call already produced every plaintext byte.
const aeadScratchSlack = 16

// MissingSymbolError reports a required entry point the backend library
// does not export. A single missing symbol fails the entire bind.
type MissingSymbolError struct {
	Name string
}

func (e *MissingSymbolError) Error() string {
	return fmt.Sprintf("openssl: missing required symbol %s", e.Name)
}

// symbolTable holds every bound backend entry point. It is populated
// all-or-nothing by bind: either every symbol required for the detected
// version resolved, or the table is discarded along with the library.
type symbolTable struct {
	// Error queue
	errGetError    func() uint64
	errErrorString func(code uint64, buf uintptr) string

	// Message digests
	sha1          func() uintptr
	sha224        func() uintptr
	sha256        func() uintptr
	sha384        func() uintptr
	sha512        func() uintptr
	mdCtxNew      func() uintptr
	mdCtxFree     func(ctx uintptr)
	mdCtxReset    func(ctx uintptr) int32
	mdCtxCopy     func(dst, src uintptr) int32
	digestInit    func(ctx, md, engine uintptr) int32
	digestUpdate  func(ctx uintptr, data *byte, n uint) int32
	digestFinal   func(ctx uintptr, out *byte, outLen *uint32) int32

	// Cipher contexts
	cipherCtxNew        func() uintptr
	cipherCtxFree       func(ctx uintptr)
	cipherCtxSetPadding func(ctx uintptr, pad int32) int32
	cipherCtxCtrl       func(ctx uintptr, op, arg int32, ptr *byte) int32
	cipherInit          func(ctx, cipher, engine uintptr, key, iv *byte, enc int32) int32
	cipherUpdate        func(ctx uintptr, out *byte, outLen *int32, in *byte, inLen int32) int32
	cipherFinal         func(ctx uintptr, out *byte, outLen *int32) int32
	decryptInit         func(ctx, cipher, engine uintptr, key, iv *byte) int32
	decryptUpdate       func(ctx uintptr, out *byte, outLen *int32, in *byte, inLen int32) int32
	decryptFinal        func(ctx uintptr, out *byte, outLen *int32) int32

	// Algorithm selectors
	aes128CBC func() uintptr
	aes192CBC func() uintptr
	aes256CBC func() uintptr
	aes128GCM func() uintptr
	aes192GCM func() uintptr
	aes256GCM func() uintptr

	// ChaCha20 selectors, absent before 1.1.0
	chacha20         func() uintptr
	chacha20Poly1305 func() uintptr

	// FIPS probes: fipsMode on 1.x, fipsEnabled (library-context form)
	// on 3.x.
	fipsMode    func() int32
	fipsEnabled func(libctx uintptr) int32

	// Legacy (1.0.x) threading entry points
	cryptoNumLocks           func() int32
	cryptoSetLockingCallback func(cb uintptr)
	threadIDSetCallback      func(cb uintptr) int32
	threadIDSetNumeric       func(id uintptr, val uint64)
}

// lookupFunc resolves a symbol name to an address; 0 means absent.
// Injectable so binding can be tested without a loaded library.
type lookupFunc func(name string) uintptr

// symbolSpec describes one entry point in the bind table: its modern name,
// the 1.0.x alternate name where the ABI renamed it, and the version range
// in which it is required. A zero minVersion means "always"; a nonzero
// maxVersion bounds legacy-only symbols.
type symbolSpec struct {
	name       string
	legacyName string
	minVersion VersionCode
	maxVersion VersionCode
	fn         any
}

func (t *symbolTable) specs() []symbolSpec {
	return []symbolSpec{
		{name: "ERR_get_error", fn: &t.errGetError},
		{name: "ERR_error_string", fn: &t.errErrorString},

		{name: "EVP_sha1", fn: &t.sha1},
		{name: "EVP_sha224", fn: &t.sha224},
		{name: "EVP_sha256", fn: &t.sha256},
		{name: "EVP_sha384", fn: &t.sha384},
		{name: "EVP_sha512", fn: &t.sha512},
		{name: "EVP_MD_CTX_new", legacyName: "EVP_MD_CTX_create", fn: &t.mdCtxNew},
		{name: "EVP_MD_CTX_free", legacyName: "EVP_MD_CTX_destroy", fn: &t.mdCtxFree},
		{name: "EVP_MD_CTX_reset", legacyName: "EVP_MD_CTX_cleanup", fn: &t.mdCtxReset},
		{name: "EVP_MD_CTX_copy_ex", fn: &t.mdCtxCopy},
		{name: "EVP_DigestInit_ex", fn: &t.digestInit},
		{name: "EVP_DigestUpdate", fn: &t.digestUpdate},
		{name: "EVP_DigestFinal_ex", fn: &t.digestFinal},

		{name: "EVP_CIPHER_CTX_new", fn: &t.cipherCtxNew},
		{name: "EVP_CIPHER_CTX_free", fn: &t.cipherCtxFree},
		{name: "EVP_CIPHER_CTX_set_padding", fn: &t.cipherCtxSetPadding},
		{name: "EVP_CIPHER_CTX_ctrl", fn: &t.cipherCtxCtrl},
		{name: "EVP_CipherInit_ex", fn: &t.cipherInit},
		{name: "EVP_CipherUpdate", fn: &t.cipherUpdate},
		{name: "EVP_CipherFinal_ex", fn: &t.cipherFinal},
		{name: "EVP_DecryptInit_ex", fn: &t.decryptInit},
		{name: "EVP_DecryptUpdate", fn: &t.decryptUpdate},
		{name: "EVP_DecryptFinal", fn: &t.decryptFinal},

		{name: "EVP_aes_128_cbc", fn: &t.aes128CBC},
		{name: "EVP_aes_192_cbc", fn: &t.aes192CBC},
		{name: "EVP_aes_256_cbc", fn: &t.aes256CBC},
		{name: "EVP_aes_128_gcm", fn: &t.aes128GCM},
		{name: "EVP_aes_192_gcm", fn: &t.aes192GCM},
		{name: "EVP_aes_256_gcm", fn: &t.aes256GCM},

		{name: "EVP_chacha20", minVersion: Version1_1_0, fn: &t.chacha20},
		{name: "EVP_chacha20_poly1305", minVersion: Version1_1_0, fn: &t.chacha20Poly1305},

		{name: "FIPS_mode", minVersion: Version1_0_0, maxVersion: Version3_0_0, fn: &t.fipsMode},
		{name: "EVP_default_properties_is_fips_enabled", minVersion: Version3_0_0, fn: &t.fipsEnabled},

		{name: "CRYPTO_num_locks", minVersion: Version1_0_0, maxVersion: Version1_1_0, fn: &t.cryptoNumLocks},
		{name: "CRYPTO_set_locking_callback", minVersion: Version1_0_0, maxVersion: Version1_1_0, fn: &t.cryptoSetLockingCallback},
		{name: "CRYPTO_THREADID_set_callback", minVersion: Version1_0_0, maxVersion: Version1_1_0, fn: &t.threadIDSetCallback},
		{name: "CRYPTO_THREADID_set_numeric", minVersion: Version1_0_0, maxVersion: Version1_1_0, fn: &t.threadIDSetNumeric},
	}
}

// requiredAt reports whether the symbol must be present for the given
// backend version.
func (s *symbolSpec) requiredAt(code VersionCode) bool {
	if code < s.minVersion {
		return false
	}
	if s.maxVersion != 0 && code >= s.maxVersion {
		return false
	}
	return true
}

// symbolName selects between the modern and legacy entry point name.
func (s *symbolSpec) symbolName(code VersionCode) string {
	if code.Legacy() && s.legacyName != "" {
		return s.legacyName
	}
	return s.name
}

// bind resolves every entry point required for the detected version and
// returns a fully populated table, or the first MissingSymbolError. There
// is no degraded mode: a table with any required symbol absent is never
// published.
func bind(code VersionCode, lookup lookupFunc) (*symbolTable, error) {
	t := &symbolTable{}
	for _, spec := range t.specs() {
		name := spec.symbolName(code)
		addr := lookup(name)
		if addr == 0 {
			if spec.requiredAt(code) {
				return nil, &MissingSymbolError{Name: name}
			}
			continue
		}
		purego.RegisterFunc(spec.fn, addr)
	}
	return t, nil
}

// lastError drains the backend error queue and renders the most recent
// entry, for wrapping into returned errors.
func (t *symbolTable) lastError() string {
	msg := ""
	for {
		code := t.errGetError()
		if code == 0 {
			break
		}
		msg = t.errErrorString(code, 0)
	}
	return msg
}
