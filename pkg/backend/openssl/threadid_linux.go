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

import "golang.org/x/sys/unix"

// threadID identifies the calling OS thread for the legacy thread-id
// callback. Callbacks fire on the thread the library call runs on, so
// the kernel tid is stable for the duration of the call.
func threadID() uint64 {
	return uint64(unix.Gettid())
}
