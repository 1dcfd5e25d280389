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
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ebitengine/purego"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
	"github.com/jeremyhahn/go-libcrypto/pkg/logging"
)

// The two version-banner entry points, queried in fixed fallback order.
// OpenSSL 1.1 and later export OpenSSL_version; 1.0.x exports only
// SSLeay_version.
var versionSymbols = [2]string{"OpenSSL_version", "SSLeay_version"}

// candidateNames returns the ordered library names to probe for the given
// platform. Exact-version names come first so a generic symlink, whose
// target version is unknown until loaded, is only settled for when nothing
// more specific exists.
func candidateNames(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"libcrypto.3.dylib",
			"libcrypto.1.1.dylib",
			"libcrypto.1.0.0.dylib",
			"libcrypto.dylib",
		}
	case "windows":
		return []string{
			"libcrypto-3-x64.dll",
			"libcrypto-3.dll",
			"libcrypto-1_1-x64.dll",
			"libcrypto-1_1.dll",
			"libeay32.dll",
		}
	default:
		// linux, freebsd and friends
		return []string{
			"libcrypto.so.3",
			"libcrypto.so.1.1",
			"libcrypto.so.1.0.0",
			"libcrypto.so.10",
			"libcrypto.so",
		}
	}
}

// genericName reports whether a candidate is a version-less symlink name
// rather than an exact-version library name.
func genericName(name string) bool {
	base := filepath.Base(name)
	return !strings.ContainsAny(base, "0123456789")
}

// loadedLibrary is one successfully loaded and version-checked candidate.
type loadedLibrary struct {
	handle  uintptr
	name    string
	banner  string
	version VersionCode
}

// loaderFunc loads a library by name or path. Injectable for tests.
type loaderFunc func(name string) (uintptr, error)

// bannerFunc queries a loaded library's version banner. Injectable for
// tests; the production implementation resolves the banner symbols above.
type bannerFunc func(handle uintptr) (string, bool)

func queryBanner(handle uintptr) (string, bool) {
	for _, sym := range versionSymbols {
		addr := dlsym(handle, sym)
		if addr == 0 {
			continue
		}
		var version func(int) string
		purego.RegisterFunc(&version, addr)
		return version(0), true
	}
	return "", false
}

// resolverOptions carries the externally configurable resolver inputs.
type resolverOptions struct {
	// preferredDir, when set, is tried before the default search path for
	// every candidate name.
	preferredDir string

	// override, when set, replaces the candidate list with a single
	// explicit library file name.
	override string
}

// resolve locates, loads and version-checks a backend library. The first
// exact-version candidate in a supported family wins immediately; a
// generic symlink is held tentatively and displaced by any later specific
// success in the same pass.
func resolve(opts resolverOptions, load loaderFunc, banner bannerFunc, unload func(uintptr), log *logging.Logger) (*loadedLibrary, error) {
	names := candidateNames(runtime.GOOS)
	if opts.override != "" {
		names = []string{opts.override}
	}

	var paths []string
	if opts.preferredDir != "" {
		for _, name := range names {
			paths = append(paths, filepath.Join(opts.preferredDir, name))
		}
	}
	paths = append(paths, names...)

	var tentative *loadedLibrary
	loadedAny := false

	for _, path := range paths {
		handle, err := load(path)
		if err != nil {
			continue
		}

		text, ok := banner(handle)
		if !ok {
			// No version entry point at all: not a backend we know how
			// to talk to.
			log.Debugf("openssl: %s has no version symbol, skipping", path)
			loadedAny = true
			unload(handle)
			continue
		}

		code, err := ParseVersionText(text)
		if err != nil || !code.Supported() {
			log.Debugf("openssl: %s reports unsupported version %q, skipping", path, text)
			loadedAny = true
			unload(handle)
			continue
		}

		lib := &loadedLibrary{handle: handle, name: path, banner: text, version: code}

		if genericName(path) {
			if tentative == nil {
				tentative = lib
				continue
			}
			unload(handle)
			continue
		}

		// Specific version found; it displaces any tentative symlink.
		if tentative != nil {
			unload(tentative.handle)
		}
		log.Debugf("openssl: loaded %s (%s)", path, text)
		return lib, nil
	}

	if tentative != nil {
		log.Debugf("openssl: loaded %s (%s)", tentative.name, tentative.banner)
		return tentative, nil
	}
	if loadedAny {
		return nil, backend.ErrNoCompatibleVersion
	}
	return nil, backend.ErrBackendNotFound
}
