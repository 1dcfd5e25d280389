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

package backend

import "errors"

var (
	// ErrBackendUnavailable is returned when no usable native backend could
	// be loaded. Callers are expected to fall back to a software provider;
	// this package never supplies one.
	ErrBackendUnavailable = errors.New("backend: native backend unavailable")

	// ErrBackendNotFound is returned when no candidate library file could
	// be loaded at all.
	ErrBackendNotFound = errors.New("backend: no crypto library found")

	// ErrNoCompatibleVersion is returned when candidate libraries loaded
	// but none reported a supported version family.
	ErrNoCompatibleVersion = errors.New("backend: no crypto library with a compatible version")

	// ErrTagMismatch is returned when AEAD tag verification fails during
	// decryption. This is an expected, security-relevant outcome, not a
	// programmer error: no recovered plaintext is ever released on this
	// path.
	ErrTagMismatch = errors.New("backend: authentication tag mismatch")

	// ErrBackendFailure is returned when a native call reports an internal
	// error that does not map to a more specific condition.
	ErrBackendFailure = errors.New("backend: native operation failed")

	// ErrInvalidHandle is returned when an operation references a handle
	// the backend did not issue or has already destroyed.
	ErrInvalidHandle = errors.New("backend: invalid native handle")

	// ErrInvalidKeySize is returned when a key length is not valid for the
	// selected algorithm family.
	ErrInvalidKeySize = errors.New("backend: invalid key size")

	// ErrClosed is returned when an operation is attempted after Close.
	ErrClosed = errors.New("backend: backend closed")
)
