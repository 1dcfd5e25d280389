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
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
	"github.com/jeremyhahn/go-libcrypto/pkg/logging"
)

// fakeLoader simulates a dynamic loader over a fixed set of library files,
// each reporting a version banner. Handles are positions in the deck so
// tests can assert which loads were later unloaded.
type fakeLoader struct {
	libs     map[string]string // name -> banner; empty banner means no version symbol
	next     uintptr
	banners  map[uintptr]string
	unloaded []uintptr
}

func newFakeLoader(libs map[string]string) *fakeLoader {
	return &fakeLoader{libs: libs, next: 100, banners: make(map[uintptr]string)}
}

func (f *fakeLoader) load(name string) (uintptr, error) {
	banner, ok := f.libs[name]
	if !ok {
		return 0, errors.New("not found")
	}
	f.next++
	f.banners[f.next] = banner
	return f.next, nil
}

func (f *fakeLoader) banner(handle uintptr) (string, bool) {
	b := f.banners[handle]
	if b == "" {
		return "", false
	}
	return b, true
}

func (f *fakeLoader) unload(handle uintptr) {
	f.unloaded = append(f.unloaded, handle)
}

func testResolve(t *testing.T, opts resolverOptions, f *fakeLoader) (*loadedLibrary, error) {
	t.Helper()
	return resolve(opts, f.load, f.banner, f.unload, logging.NewLogger(false))
}

func TestResolvePrefersSpecificVersion(t *testing.T) {
	f := newFakeLoader(map[string]string{
		"libcrypto.so.1.1": "OpenSSL 1.1.1w  11 Sep 2023",
		"libcrypto.so":     "OpenSSL 1.1.1w  11 Sep 2023",
	})

	lib, err := testResolve(t, resolverOptions{}, f)
	require.NoError(t, err)
	assert.Equal(t, "libcrypto.so.1.1", lib.name)
	assert.Equal(t, MakeVersionCode(1, 1, 1, 0), lib.version)
}

func TestResolveGenericSymlinkDisplacedBySpecific(t *testing.T) {
	// The preferred directory only carries the version-less symlink; a
	// specific library exists on the default search path. The symlink is
	// held tentatively and must lose to the later specific hit.
	dir := "/opt/crypto/lib"
	f := newFakeLoader(map[string]string{
		filepath.Join(dir, "libcrypto.so"): "OpenSSL 3.0.13 30 Jan 2024",
		"libcrypto.so.3":                   "OpenSSL 3.0.13 30 Jan 2024",
	})

	lib, err := testResolve(t, resolverOptions{preferredDir: dir}, f)
	require.NoError(t, err)
	assert.Equal(t, "libcrypto.so.3", lib.name)
	require.Len(t, f.unloaded, 1, "tentative symlink handle should be unloaded")
	assert.NotEqual(t, lib.handle, f.unloaded[0])
}

func TestResolveGenericSymlinkUsedWhenAlone(t *testing.T) {
	f := newFakeLoader(map[string]string{
		"libcrypto.so": "OpenSSL 3.1.4 24 Oct 2023",
	})

	lib, err := testResolve(t, resolverOptions{}, f)
	require.NoError(t, err)
	assert.Equal(t, "libcrypto.so", lib.name)
	assert.Empty(t, f.unloaded)
}

func TestResolvePreferredDirWinsOverSearchPath(t *testing.T) {
	dir := "/opt/crypto/lib"
	f := newFakeLoader(map[string]string{
		filepath.Join(dir, "libcrypto.so.3"): "OpenSSL 3.0.13 30 Jan 2024",
		"libcrypto.so.3":                     "OpenSSL 3.2.1 30 Jan 2024",
	})

	lib, err := testResolve(t, resolverOptions{preferredDir: dir}, f)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "libcrypto.so.3"), lib.name)
}

func TestResolveOverrideReplacesCandidates(t *testing.T) {
	f := newFakeLoader(map[string]string{
		"libcrypto.so.3": "OpenSSL 3.0.13 30 Jan 2024",
		"libmycrypto.so": "OpenSSL 1.1.1w  11 Sep 2023",
	})

	lib, err := testResolve(t, resolverOptions{override: "libmycrypto.so"}, f)
	require.NoError(t, err)
	assert.Equal(t, "libmycrypto.so", lib.name)
}

func TestResolveUnsupportedVersionsRejected(t *testing.T) {
	f := newFakeLoader(map[string]string{
		"libcrypto.so": "OpenSSL 0.9.8zh 3 Dec 2015",
	})

	_, err := testResolve(t, resolverOptions{}, f)
	require.ErrorIs(t, err, backend.ErrNoCompatibleVersion)
	assert.Len(t, f.unloaded, 1)
}

func TestResolveMissingVersionSymbolRejected(t *testing.T) {
	f := newFakeLoader(map[string]string{
		"libcrypto.so": "", // loads, but exports no version entry point
	})

	_, err := testResolve(t, resolverOptions{}, f)
	require.ErrorIs(t, err, backend.ErrNoCompatibleVersion)
}

func TestResolveNothingLoadable(t *testing.T) {
	f := newFakeLoader(nil)

	_, err := testResolve(t, resolverOptions{}, f)
	require.ErrorIs(t, err, backend.ErrBackendNotFound)
}

func TestCandidateNamesOrdering(t *testing.T) {
	linux := candidateNames("linux")
	require.NotEmpty(t, linux)
	assert.Equal(t, "libcrypto.so.3", linux[0])
	assert.Equal(t, "libcrypto.so", linux[len(linux)-1])

	darwin := candidateNames("darwin")
	assert.Equal(t, "libcrypto.3.dylib", darwin[0])
	assert.Equal(t, "libcrypto.dylib", darwin[len(darwin)-1])
}

func TestGenericName(t *testing.T) {
	assert.True(t, genericName("libcrypto.so"))
	assert.True(t, genericName("/opt/crypto/lib/libcrypto.so"))
	assert.True(t, genericName("libcrypto.dylib"))
	assert.False(t, genericName("libcrypto.so.3"))
	assert.False(t, genericName("libcrypto.so.1.1"))
	assert.False(t, genericName("libcrypto-3-x64.dll"))
}
