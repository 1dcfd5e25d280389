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
	"strconv"
	"strings"
)

// VersionCode is the ordered numeric encoding of an OpenSSL version,
// laid out as OPENSSL_VERSION_NUMBER does (MNNFFPP0 nibbles): major in the
// top nibble, then minor, fix and patch. Plain integer comparison orders
// versions correctly, which is all the binder needs for range checks.
type VersionCode uint64

// Version codes delimiting the supported family ranges.
const (
	Version1_0_0 VersionCode = 0x1_00_00_00_0
	Version1_1_0 VersionCode = 0x1_01_00_00_0
	Version1_2_0 VersionCode = 0x1_02_00_00_0
	Version3_0_0 VersionCode = 0x3_00_00_00_0
)

// MakeVersionCode encodes major.minor.fix.patch as a VersionCode.
func MakeVersionCode(major, minor, fix, patch uint64) VersionCode {
	return VersionCode(major<<28 | minor<<20 | fix<<12 | patch<<4)
}

// Major returns the encoded major version.
func (v VersionCode) Major() uint64 { return uint64(v) >> 28 }

// Minor returns the encoded minor version.
func (v VersionCode) Minor() uint64 { return (uint64(v) >> 20) & 0xff }

// String renders the code as a dotted version string.
func (v VersionCode) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), (uint64(v)>>12)&0xff)
}

// Legacy reports whether the version belongs to the 1.0.x family, which
// requires the thread-safety shim and uses renamed digest-context symbols.
func (v VersionCode) Legacy() bool {
	return v >= Version1_0_0 && v < Version1_1_0
}

// Supported reports whether the version falls into one of the three
// supported families: 1.0.x, 1.1.x, or 3.x and later.
func (v VersionCode) Supported() bool {
	if v >= Version3_0_0 {
		return true
	}
	return v >= Version1_0_0 && v < Version1_2_0
}

// ParseVersionText extracts a VersionCode from a backend version banner
// such as "OpenSSL 3.0.13 30 Jan 2024" or "OpenSSL 1.0.2k-fips".
func ParseVersionText(text string) (VersionCode, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 || fields[0] != "OpenSSL" {
		return 0, fmt.Errorf("openssl: unrecognized version banner %q", text)
	}

	// Trim letter suffixes and build metadata ("1.1.1k", "1.0.2k-fips").
	numeric := fields[1]
	if i := strings.IndexAny(numeric, "-+"); i >= 0 {
		numeric = numeric[:i]
	}
	numeric = strings.TrimRightFunc(numeric, func(r rune) bool {
		return r < '0' || r > '9'
	})

	parts := strings.Split(numeric, ".")
	if len(parts) < 2 {
		return 0, fmt.Errorf("openssl: unrecognized version %q", fields[1])
	}

	var nums [3]uint64
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.ParseUint(parts[i], 10, 8)
		if err != nil {
			return 0, fmt.Errorf("openssl: unrecognized version %q: %w", fields[1], err)
		}
		nums[i] = n
	}

	return MakeVersionCode(nums[0], nums[1], nums[2], 0), nil
}
