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

import "errors"

var (
	// ErrNotInitialized is returned when data or AAD is supplied before
	// Init has bound a key.
	ErrNotInitialized = errors.New("cipher: not initialized")

	// ErrContextDestroyed is returned when an operation runs on an engine
	// whose native context was destroyed.
	ErrContextDestroyed = errors.New("cipher: context destroyed")

	// ErrUseAfterFinal is returned when an operation runs on a finalized
	// engine that has not been re-initialized.
	ErrUseAfterFinal = errors.New("cipher: operation after finalization, re-initialization required")

	// ErrAADAfterData is returned when associated data arrives after
	// plaintext or ciphertext processing has begun.
	ErrAADAfterData = errors.New("cipher: associated data supplied after data processing started")

	// ErrAADOverflow is returned when the running associated data length
	// would exceed its 64-bit counter. Previously supplied AAD is
	// retained and the engine remains usable.
	ErrAADOverflow = errors.New("cipher: associated data length overflow")

	// ErrTagTooShort is returned when a decryption finalizes with less
	// input than one full authentication tag.
	ErrTagTooShort = errors.New("cipher: input shorter than authentication tag")

	// ErrKeyNonceReuse is returned when an encryption Init repeats the
	// key and nonce of the immediately preceding Init on the same engine.
	ErrKeyNonceReuse = errors.New("cipher: key and nonce reuse detected")

	// ErrInvalidNonceSize is returned for nonce lengths the algorithm
	// does not accept.
	ErrInvalidNonceSize = errors.New("cipher: invalid nonce size")

	// ErrInvalidTagSize is returned for tag lengths outside the
	// algorithm's range.
	ErrInvalidTagSize = errors.New("cipher: invalid tag size")

	// ErrInvalidKeySize is returned for key lengths the algorithm does
	// not accept.
	ErrInvalidKeySize = errors.New("cipher: invalid key size")

	// ErrOutputTooSmall is returned when the output buffer cannot hold
	// the result of an operation.
	ErrOutputTooSmall = errors.New("cipher: output buffer too small")

	// ErrBlockAlignment is returned when CBC input is not a multiple of
	// the block size.
	ErrBlockAlignment = errors.New("cipher: input not block aligned")

	// ErrStreamingUnsupported is returned when an operation only valid
	// for the keystream mode runs on an AEAD engine, or the reverse.
	ErrStreamingUnsupported = errors.New("cipher: operation not supported in this mode")
)
