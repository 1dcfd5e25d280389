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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// symbolNamesFor lists the names the binder would require at a version,
// derived straight from the bind table.
func symbolNamesFor(code VersionCode) map[string]bool {
	t := &symbolTable{}
	names := make(map[string]bool)
	for _, spec := range t.specs() {
		if spec.requiredAt(code) {
			names[spec.symbolName(code)] = true
		}
	}
	return names
}

// fakeLookup serves nonzero addresses for a set of names. Addresses are
// never called by these tests; binding only records them.
func fakeLookup(names map[string]bool) (lookupFunc, *[]string) {
	var requested []string
	return func(name string) uintptr {
		requested = append(requested, name)
		if names[name] {
			return uintptr(0x10000 + len(requested))
		}
		return 0
	}, &requested
}

func TestBindModernResolvesAll(t *testing.T) {
	code := MakeVersionCode(1, 1, 1, 0)
	lookup, _ := fakeLookup(symbolNamesFor(code))

	tbl, err := bind(code, lookup)
	require.NoError(t, err)
	require.NotNil(t, tbl)
	assert.NotNil(t, tbl.cipherCtxNew)
	assert.NotNil(t, tbl.chacha20)
	assert.NotNil(t, tbl.chacha20Poly1305)
	assert.NotNil(t, tbl.fipsMode)
	assert.Nil(t, tbl.fipsEnabled)
	assert.Nil(t, tbl.cryptoNumLocks)
}

func TestBindLegacyUsesRenamedDigestSymbols(t *testing.T) {
	code := MakeVersionCode(1, 0, 2, 0)
	names := symbolNamesFor(code)
	assert.True(t, names["EVP_MD_CTX_create"])
	assert.True(t, names["EVP_MD_CTX_destroy"])
	assert.True(t, names["EVP_MD_CTX_cleanup"])
	assert.False(t, names["EVP_MD_CTX_new"])

	lookup, requested := fakeLookup(names)
	tbl, err := bind(code, lookup)
	require.NoError(t, err)
	assert.Contains(t, *requested, "EVP_MD_CTX_create")
	assert.NotContains(t, *requested, "EVP_MD_CTX_new")
	assert.NotNil(t, tbl.cryptoNumLocks)
	assert.NotNil(t, tbl.cryptoSetLockingCallback)
	assert.NotNil(t, tbl.threadIDSetCallback)
	assert.NotNil(t, tbl.threadIDSetNumeric)
}

func TestBindLegacyToleratesMissingChaCha(t *testing.T) {
	// 1.0.x libraries predate the ChaCha20 entry points; binding must
	// succeed without them and leave the selectors unbound.
	code := MakeVersionCode(1, 0, 2, 0)
	lookup, _ := fakeLookup(symbolNamesFor(code))

	tbl, err := bind(code, lookup)
	require.NoError(t, err)
	assert.Nil(t, tbl.chacha20)
	assert.Nil(t, tbl.chacha20Poly1305)
}

func TestBindModernRequiresChaCha(t *testing.T) {
	code := MakeVersionCode(1, 1, 1, 0)
	names := symbolNamesFor(code)
	delete(names, "EVP_chacha20")
	lookup, _ := fakeLookup(names)

	_, err := bind(code, lookup)
	require.Error(t, err)
	var missing *MissingSymbolError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "EVP_chacha20", missing.Name)
}

func TestBindSingleMissingRequiredSymbolFails(t *testing.T) {
	code := MakeVersionCode(3, 0, 13, 0)
	names := symbolNamesFor(code)
	delete(names, "EVP_CipherUpdate")
	lookup, _ := fakeLookup(names)

	tbl, err := bind(code, lookup)
	assert.Nil(t, tbl)
	var missing *MissingSymbolError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "EVP_CipherUpdate", missing.Name)
	assert.Contains(t, missing.Error(), "EVP_CipherUpdate")
}

func TestBindFIPSProbeByFamily(t *testing.T) {
	legacy := symbolNamesFor(MakeVersionCode(1, 1, 1, 0))
	assert.True(t, legacy["FIPS_mode"])
	assert.False(t, legacy["EVP_default_properties_is_fips_enabled"])

	modern := symbolNamesFor(MakeVersionCode(3, 0, 0, 0))
	assert.False(t, modern["FIPS_mode"])
	assert.True(t, modern["EVP_default_properties_is_fips_enabled"])
}

func TestBindThreadingSymbolsOnlyRequiredForLegacy(t *testing.T) {
	for _, code := range []VersionCode{
		MakeVersionCode(1, 1, 1, 0),
		MakeVersionCode(3, 0, 13, 0),
	} {
		names := symbolNamesFor(code)
		assert.False(t, names["CRYPTO_num_locks"], "version %s", code)
		assert.False(t, names["CRYPTO_set_locking_callback"], "version %s", code)
	}
	legacy := symbolNamesFor(MakeVersionCode(1, 0, 1, 0))
	assert.True(t, legacy["CRYPTO_num_locks"])
}
