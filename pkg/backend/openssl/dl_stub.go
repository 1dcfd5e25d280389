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

//go:build !(darwin || freebsd || linux)

package openssl

import "errors"

// Dynamic loading is not wired up on this platform; resolution reports
// the backend as unavailable and callers use their software fallback.

func dlopen(name string) (uintptr, error) {
	return 0, errors.New("openssl: dynamic loading not supported on this platform")
}

func dlsym(handle uintptr, name string) uintptr { return 0 }

func dlclose(handle uintptr) {}
