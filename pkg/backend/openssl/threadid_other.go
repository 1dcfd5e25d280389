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

//go:build !linux

package openssl

// threadID is only consulted by the legacy thread-id callback, which in
// practice is installed for 1.0.x libraries on Linux distributions. Other
// platforms fall back to the library's address-based default by reporting
// a constant id.
func threadID() uint64 {
	return 0
}
