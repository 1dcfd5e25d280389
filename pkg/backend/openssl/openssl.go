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

// Package openssl implements the native backend over a runtime-loaded
// libcrypto shared library. No cgo and no link-time dependency: the
// library is located, loaded and bound symbol by symbol at startup, and
// the process runs fully managed when none is found.
package openssl

import (
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
	"github.com/jeremyhahn/go-libcrypto/pkg/logging"
)

// Options configure backend loading.
type Options struct {
	// Dir, when set, is searched before the platform's default library
	// path for every candidate name.
	Dir string

	// Library, when set, replaces the candidate list with one explicit
	// library file name or path.
	Library string

	// Logger receives load and trace output. Nil selects a quiet default.
	Logger *logging.Logger
}

// Backend is a loaded libcrypto library implementing backend.Backend.
type Backend struct {
	lib  *loadedLibrary
	syms *symbolTable
	shim *lockShim
	fips bool
	log  *logging.Logger

	mu      sync.Mutex
	closed  bool
	ciphers map[backend.CipherHandle]struct{}
	digests map[backend.DigestHandle]uintptr // handle -> EVP_MD selector
}

var _ backend.Backend = (*Backend)(nil)

var (
	defaultOnce    sync.Once
	defaultBackend *Backend
	defaultErr     error
)

// Default loads the backend from the platform search path on first use and
// caches the result for the life of the process. The error, too, is
// cached: a process that starts without a usable library stays managed.
func Default() (*Backend, error) {
	defaultOnce.Do(func() {
		defaultBackend, defaultErr = Load(Options{})
	})
	return defaultBackend, defaultErr
}

// Load locates, loads, version-checks and binds a libcrypto library.
func Load(opts Options) (*Backend, error) {
	log := opts.Logger
	if log == nil {
		log = logging.NewLogger(false)
	}

	lib, err := resolve(resolverOptions{
		preferredDir: opts.Dir,
		override:     opts.Library,
	}, dlopen, queryBanner, dlclose, log)
	if err != nil {
		return nil, err
	}

	syms, err := bind(lib.version, func(name string) uintptr {
		return dlsym(lib.handle, name)
	})
	if err != nil {
		dlclose(lib.handle)
		log.Errorf("openssl: binding %s: %v", lib.name, err)
		return nil, fmt.Errorf("%w: %v", backend.ErrBackendUnavailable, err)
	}

	b := &Backend{
		lib:     lib,
		syms:    syms,
		log:     log,
		ciphers: make(map[backend.CipherHandle]struct{}),
		digests: make(map[backend.DigestHandle]uintptr),
	}

	if lib.version.Legacy() {
		b.shim = &lockShim{}
		b.shim.install(syms)
	}

	if lib.version >= Version3_0_0 {
		b.fips = syms.fipsEnabled(0) == 1
	} else {
		b.fips = syms.fipsMode() == 1
	}

	log.Debugf("openssl: backend ready: %s, fips=%v", lib.banner, b.fips)
	return b, nil
}

// Version implements backend.Backend.
func (b *Backend) Version() uint64 { return uint64(b.lib.version) }

// VersionText implements backend.Backend.
func (b *Backend) VersionText() string { return b.lib.banner }

// FIPS implements backend.Backend.
func (b *Backend) FIPS() bool { return b.fips }

// opError wraps the backend error queue into a returned error.
func (b *Backend) opError(op string) error {
	if msg := b.syms.lastError(); msg != "" {
		return fmt.Errorf("openssl: %s: %s: %w", op, msg, backend.ErrBackendFailure)
	}
	return fmt.Errorf("openssl: %s: %w", op, backend.ErrBackendFailure)
}

func bptr(p []byte) *byte {
	if len(p) == 0 {
		return nil
	}
	return &p[0]
}

// CreateCipher implements backend.Backend.
func (b *Backend) CreateCipher() (backend.CipherHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, backend.ErrClosed
	}
	ctx := b.syms.cipherCtxNew()
	if ctx == 0 {
		return 0, b.opError("EVP_CIPHER_CTX_new")
	}
	h := backend.CipherHandle(ctx)
	b.ciphers[h] = struct{}{}
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
	delete(b.ciphers, h)
	b.syms.cipherCtxFree(uintptr(h))
	return nil
}

// checkCipher validates a handle without holding the lock across the
// native call that follows.
func (b *Backend) checkCipher(h backend.CipherHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return backend.ErrClosed
	}
	if _, ok := b.ciphers[h]; !ok {
		return backend.ErrInvalidHandle
	}
	return nil
}

func (b *Backend) cbcSelector(keyLen int) (uintptr, error) {
	switch keyLen {
	case 16:
		return b.syms.aes128CBC(), nil
	case 24:
		return b.syms.aes192CBC(), nil
	case 32:
		return b.syms.aes256CBC(), nil
	default:
		return 0, backend.ErrInvalidKeySize
	}
}

func (b *Backend) gcmSelector(keyLen int) (uintptr, error) {
	switch keyLen {
	case 16:
		return b.syms.aes128GCM(), nil
	case 24:
		return b.syms.aes192GCM(), nil
	case 32:
		return b.syms.aes256GCM(), nil
	default:
		return 0, backend.ErrInvalidKeySize
	}
}

// CBCInit implements backend.Backend.
func (b *Backend) CBCInit(h backend.CipherHandle, dir backend.Direction, key, iv []byte) error {
	if err := b.checkCipher(h); err != nil {
		return err
	}
	cipher, err := b.cbcSelector(len(key))
	if err != nil {
		return err
	}
	enc := int32(0)
	if dir == backend.DirectionEncrypt {
		enc = 1
	}
	if b.syms.cipherInit(uintptr(h), cipher, 0, bptr(key), bptr(iv), enc) != 1 {
		return b.opError("EVP_CipherInit_ex")
	}
	if b.syms.cipherCtxSetPadding(uintptr(h), 0) != 1 {
		return b.opError("EVP_CIPHER_CTX_set_padding")
	}
	return nil
}

// CBCUpdate implements backend.Backend.
func (b *Backend) CBCUpdate(h backend.CipherHandle, in, out []byte) (int, error) {
	if err := b.checkCipher(h); err != nil {
		return 0, err
	}
	var n int32
	if b.syms.cipherUpdate(uintptr(h), bptr(out), &n, bptr(in), int32(len(in))) != 1 {
		return 0, b.opError("EVP_CipherUpdate")
	}
	return int(n), nil
}

// CBCFinalEncrypt implements backend.Backend.
func (b *Backend) CBCFinalEncrypt(h backend.CipherHandle, in, out []byte) (int, error) {
	if err := b.checkCipher(h); err != nil {
		return 0, err
	}
	var n, fin int32
	if len(in) > 0 {
		if b.syms.cipherUpdate(uintptr(h), bptr(out), &n, bptr(in), int32(len(in))) != 1 {
			return 0, b.opError("EVP_CipherUpdate")
		}
	}
	if b.syms.cipherFinal(uintptr(h), bptr(out[n:]), &fin) != 1 {
		return 0, b.opError("EVP_CipherFinal_ex")
	}
	return int(n + fin), nil
}

// gcmInit drives the shared re-keying sequence for both directions. The
// cipher selection and IV length survive on the context between calls, so
// they are only re-run when the caller reports a change.
func (b *Backend) gcmInit(h backend.CipherHandle, key, iv []byte, enc int32, freshSelection, freshIVLen bool) error {
	ctx := uintptr(h)
	if freshSelection {
		cipher, err := b.gcmSelector(len(key))
		if err != nil {
			return err
		}
		if b.syms.cipherInit(ctx, cipher, 0, nil, nil, enc) != 1 {
			return b.opError("EVP_CipherInit_ex")
		}
	}
	if freshSelection || freshIVLen {
		if b.syms.cipherCtxCtrl(ctx, ctrlAEADSetIVLen, int32(len(iv)), nil) != 1 {
			return b.opError("EVP_CIPHER_CTX_ctrl(SET_IVLEN)")
		}
	}
	if b.syms.cipherInit(ctx, 0, 0, bptr(key), bptr(iv), enc) != 1 {
		return b.opError("EVP_CipherInit_ex")
	}
	return nil
}

// GCMEncrypt implements backend.Backend.
func (b *Backend) GCMEncrypt(h backend.CipherHandle, key, iv, in, out, aad []byte, tagLen int, freshSelection, freshIVLen bool) (int, error) {
	if err := b.checkCipher(h); err != nil {
		return 0, err
	}
	if len(out) < len(in)+tagLen {
		return 0, fmt.Errorf("openssl: gcm encrypt: output buffer too small: %w", backend.ErrBackendFailure)
	}
	if err := b.gcmInit(h, key, iv, 1, freshSelection, freshIVLen); err != nil {
		return 0, err
	}

	ctx := uintptr(h)
	var n int32
	if len(aad) > 0 {
		if b.syms.cipherUpdate(ctx, nil, &n, bptr(aad), int32(len(aad))) != 1 {
			return 0, b.opError("EVP_CipherUpdate(aad)")
		}
	}
	var written int32
	if len(in) > 0 {
		if b.syms.cipherUpdate(ctx, bptr(out), &written, bptr(in), int32(len(in))) != 1 {
			return 0, b.opError("EVP_CipherUpdate")
		}
	}
	var fin int32
	if b.syms.cipherFinal(ctx, bptr(out[written:]), &fin) != 1 {
		return 0, b.opError("EVP_CipherFinal_ex")
	}
	written += fin
	if b.syms.cipherCtxCtrl(ctx, ctrlAEADGetTag, int32(tagLen), &out[written]) != 1 {
		return 0, b.opError("EVP_CIPHER_CTX_ctrl(GET_TAG)")
	}
	return int(written), nil
}

// GCMDecrypt implements backend.Backend.
func (b *Backend) GCMDecrypt(h backend.CipherHandle, key, iv, in, out, aad []byte, tagLen int, freshSelection, freshIVLen bool) (int, error) {
	if err := b.checkCipher(h); err != nil {
		return 0, err
	}
	ctLen := len(in) - tagLen
	if ctLen < 0 {
		return 0, fmt.Errorf("openssl: gcm decrypt: input shorter than tag: %w", backend.ErrBackendFailure)
	}
	if err := b.gcmInit(h, key, iv, 0, freshSelection, freshIVLen); err != nil {
		return 0, err
	}

	ctx := uintptr(h)
	tag := in[ctLen:]
	if b.syms.cipherCtxCtrl(ctx, ctrlAEADSetTag, int32(tagLen), bptr(tag)) != 1 {
		return 0, b.opError("EVP_CIPHER_CTX_ctrl(SET_TAG)")
	}

	var n int32
	if len(aad) > 0 {
		if b.syms.cipherUpdate(ctx, nil, &n, bptr(aad), int32(len(aad))) != 1 {
			return 0, b.opError("EVP_CipherUpdate(aad)")
		}
	}
	// Tentative plaintext lands in a scratch buffer; out is only written
	// after the tag verifies.
	scratch := make([]byte, ctLen+aeadScratchSlack)
	var written int32
	if ctLen > 0 {
		if b.syms.cipherUpdate(ctx, bptr(scratch), &written, bptr(in[:ctLen]), int32(ctLen)) != 1 {
			return 0, b.opError("EVP_CipherUpdate")
		}
	}
	var fin int32
	if b.syms.cipherFinal(ctx, bptr(scratch[written:]), &fin) != 1 {
		// Drain the queue so a later unrelated failure does not report
		// this verification failure's detail.
		_ = b.syms.lastError()
		return 0, backend.ErrTagMismatch
	}
	return copy(out, scratch[:written+fin]), nil
}

// ChaCha20Init implements backend.Backend.
func (b *Backend) ChaCha20Init(h backend.CipherHandle, mode backend.ChaChaMode, iv, key []byte) error {
	if err := b.checkCipher(h); err != nil {
		return err
	}
	if len(key) != 32 {
		return backend.ErrInvalidKeySize
	}
	ctx := uintptr(h)

	if mode == backend.ChaChaModeStream {
		if b.syms.chacha20 == nil {
			return fmt.Errorf("openssl: chacha20 not supported by %s: %w", b.lib.banner, backend.ErrBackendUnavailable)
		}
		if b.syms.cipherInit(ctx, b.syms.chacha20(), 0, bptr(key), bptr(iv), 1) != 1 {
			return b.opError("EVP_CipherInit_ex")
		}
		return nil
	}

	if b.syms.chacha20Poly1305 == nil {
		return fmt.Errorf("openssl: chacha20-poly1305 not supported by %s: %w", b.lib.banner, backend.ErrBackendUnavailable)
	}
	enc := int32(0)
	if mode == backend.ChaChaModePoly1305Encrypt {
		enc = 1
	}
	if b.syms.cipherInit(ctx, b.syms.chacha20Poly1305(), 0, nil, nil, enc) != 1 {
		return b.opError("EVP_CipherInit_ex")
	}
	if b.syms.cipherCtxCtrl(ctx, ctrlAEADSetIVLen, int32(len(iv)), nil) != 1 {
		return b.opError("EVP_CIPHER_CTX_ctrl(SET_IVLEN)")
	}
	if b.syms.cipherInit(ctx, 0, 0, bptr(key), bptr(iv), enc) != 1 {
		return b.opError("EVP_CipherInit_ex")
	}
	return nil
}

// ChaCha20Update implements backend.Backend.
func (b *Backend) ChaCha20Update(h backend.CipherHandle, in, out, aad []byte) (int, error) {
	if err := b.checkCipher(h); err != nil {
		return 0, err
	}
	ctx := uintptr(h)
	var n int32
	if len(aad) > 0 {
		if b.syms.cipherUpdate(ctx, nil, &n, bptr(aad), int32(len(aad))) != 1 {
			return 0, b.opError("EVP_CipherUpdate(aad)")
		}
	}
	var written int32
	if len(in) > 0 {
		if b.syms.cipherUpdate(ctx, bptr(out), &written, bptr(in), int32(len(in))) != 1 {
			return 0, b.opError("EVP_CipherUpdate")
		}
	}
	return int(written), nil
}

// ChaCha20FinalEncrypt implements backend.Backend.
func (b *Backend) ChaCha20FinalEncrypt(h backend.CipherHandle, out []byte, tagLen int) (int, error) {
	if err := b.checkCipher(h); err != nil {
		return 0, err
	}
	ctx := uintptr(h)
	var fin int32
	if b.syms.cipherFinal(ctx, bptr(out), &fin) != 1 {
		return 0, b.opError("EVP_CipherFinal_ex")
	}
	if b.syms.cipherCtxCtrl(ctx, ctrlAEADGetTag, int32(tagLen), &out[fin]) != 1 {
		return 0, b.opError("EVP_CIPHER_CTX_ctrl(GET_TAG)")
	}
	return int(fin) + tagLen, nil
}

// ChaCha20FinalDecrypt implements backend.Backend.
func (b *Backend) ChaCha20FinalDecrypt(h backend.CipherHandle, in, out, aad []byte, tagLen int) (int, error) {
	if err := b.checkCipher(h); err != nil {
		return 0, err
	}
	ctLen := len(in) - tagLen
	if ctLen < 0 {
		return 0, fmt.Errorf("openssl: chacha20 decrypt: input shorter than tag: %w", backend.ErrBackendFailure)
	}
	ctx := uintptr(h)

	var n int32
	if len(aad) > 0 {
		if b.syms.cipherUpdate(ctx, nil, &n, bptr(aad), int32(len(aad))) != 1 {
			return 0, b.opError("EVP_CipherUpdate(aad)")
		}
	}
	// Same scratch discipline as GCMDecrypt: out stays untouched until
	// the tag verifies.
	scratch := make([]byte, ctLen+aeadScratchSlack)
	var written int32
	if ctLen > 0 {
		if b.syms.cipherUpdate(ctx, bptr(scratch), &written, bptr(in[:ctLen]), int32(ctLen)) != 1 {
			return 0, b.opError("EVP_CipherUpdate")
		}
	}
	tag := in[ctLen:]
	if b.syms.cipherCtxCtrl(ctx, ctrlAEADSetTag, int32(tagLen), bptr(tag)) != 1 {
		return 0, b.opError("EVP_CIPHER_CTX_ctrl(SET_TAG)")
	}
	var fin int32
	if b.syms.cipherFinal(ctx, bptr(scratch[written:]), &fin) != 1 {
		_ = b.syms.lastError()
		return 0, backend.ErrTagMismatch
	}
	return copy(out, scratch[:written+fin]), nil
}

func (b *Backend) mdSelector(alg backend.DigestAlgorithm) (uintptr, error) {
	switch alg {
	case backend.DigestSHA1:
		return b.syms.sha1(), nil
	case backend.DigestSHA224:
		return b.syms.sha224(), nil
	case backend.DigestSHA256:
		return b.syms.sha256(), nil
	case backend.DigestSHA384:
		return b.syms.sha384(), nil
	case backend.DigestSHA512:
		return b.syms.sha512(), nil
	default:
		return 0, fmt.Errorf("openssl: unknown digest algorithm %d: %w", alg, backend.ErrBackendFailure)
	}
}

// CreateDigest implements backend.Backend.
func (b *Backend) CreateDigest(alg backend.DigestAlgorithm) (backend.DigestHandle, error) {
	md, err := b.mdSelector(alg)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, backend.ErrClosed
	}
	ctx := b.syms.mdCtxNew()
	if ctx == 0 {
		return 0, b.opError("EVP_MD_CTX_new")
	}
	if b.syms.digestInit(ctx, md, 0) != 1 {
		b.syms.mdCtxFree(ctx)
		return 0, b.opError("EVP_DigestInit_ex")
	}
	h := backend.DigestHandle(ctx)
	b.digests[h] = md
	return h, nil
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
	delete(b.digests, h)
	b.syms.mdCtxFree(uintptr(h))
	return nil
}

// checkDigest returns the EVP_MD selector bound at creation.
func (b *Backend) checkDigest(h backend.DigestHandle) (uintptr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, backend.ErrClosed
	}
	md, ok := b.digests[h]
	if !ok {
		return 0, backend.ErrInvalidHandle
	}
	return md, nil
}

// DigestCopy implements backend.Backend.
func (b *Backend) DigestCopy(dst, src backend.DigestHandle) error {
	if _, err := b.checkDigest(dst); err != nil {
		return err
	}
	if _, err := b.checkDigest(src); err != nil {
		return err
	}
	if b.syms.mdCtxCopy(uintptr(dst), uintptr(src)) != 1 {
		return b.opError("EVP_MD_CTX_copy_ex")
	}
	return nil
}

// DigestUpdate implements backend.Backend.
func (b *Backend) DigestUpdate(h backend.DigestHandle, p []byte) error {
	if _, err := b.checkDigest(h); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	if b.syms.digestUpdate(uintptr(h), &p[0], uint(len(p))) != 1 {
		return b.opError("EVP_DigestUpdate")
	}
	return nil
}

// DigestFinal implements backend.Backend.
func (b *Backend) DigestFinal(h backend.DigestHandle, out []byte) (int, error) {
	if _, err := b.checkDigest(h); err != nil {
		return 0, err
	}
	var n uint32
	if b.syms.digestFinal(uintptr(h), bptr(out), &n) != 1 {
		return 0, b.opError("EVP_DigestFinal_ex")
	}
	return int(n), nil
}

// DigestReset implements backend.Backend.
func (b *Backend) DigestReset(h backend.DigestHandle) error {
	md, err := b.checkDigest(h)
	if err != nil {
		return err
	}
	if b.syms.mdCtxReset(uintptr(h)) != 1 {
		return b.opError("EVP_MD_CTX_reset")
	}
	if b.syms.digestInit(uintptr(h), md, 0) != 1 {
		return b.opError("EVP_DigestInit_ex")
	}
	return nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for h := range b.ciphers {
		b.syms.cipherCtxFree(uintptr(h))
	}
	for h := range b.digests {
		b.syms.mdCtxFree(uintptr(h))
	}
	b.ciphers = nil
	b.digests = nil
	if b.shim != nil {
		b.shim.uninstall(b.syms)
	}
	dlclose(b.lib.handle)
	return nil
}
