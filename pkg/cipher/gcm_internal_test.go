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

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
	"github.com/jeremyhahn/go-libcrypto/pkg/backend/mocks"
)

func TestGCMAADCounterOverflow(t *testing.T) {
	g, err := NewGCM(mocks.New())
	require.NoError(t, err)
	defer g.Destroy()
	require.NoError(t, g.Init(backend.DirectionEncrypt, bytes.Repeat([]byte{1}, 16), []byte("0123456789ab"), 16))

	require.NoError(t, g.UpdateAAD([]byte("abcd")))
	g.aadCount = math.MaxUint64 - 3

	err = g.UpdateAAD([]byte("overflow"))
	require.ErrorIs(t, err, ErrAADOverflow)

	// Previously supplied AAD is retained and the engine stays usable.
	assert.Equal(t, []byte("abcd"), g.aad)
	assert.Equal(t, phaseAcceptingAAD, g.phase)
	require.NoError(t, g.UpdateAAD([]byte("ok")))
}

func TestGCMFreshFlagsTrackBoundLengths(t *testing.T) {
	g, err := NewGCM(mocks.New())
	require.NoError(t, err)
	defer g.Destroy()

	iv := []byte("0123456789ab")
	require.NoError(t, g.Init(backend.DirectionEncrypt, bytes.Repeat([]byte{1}, 16), iv, 16))
	sel, ivLen := g.freshFlags()
	assert.True(t, sel, "first use must select the algorithm")
	assert.True(t, ivLen)

	// Same lengths: the native context state is reusable as-is.
	require.NoError(t, g.Init(backend.DirectionEncrypt, bytes.Repeat([]byte{2}, 16), iv, 16))
	sel, ivLen = g.freshFlags()
	assert.False(t, sel)
	assert.False(t, ivLen)

	// Key length change forces re-selection.
	require.NoError(t, g.Init(backend.DirectionEncrypt, bytes.Repeat([]byte{3}, 32), iv, 16))
	sel, ivLen = g.freshFlags()
	assert.True(t, sel)
	assert.False(t, ivLen)
}

func TestChaChaAADCounterOverflow(t *testing.T) {
	c, err := NewChaCha20(mocks.New())
	require.NoError(t, err)
	defer c.Destroy()
	require.NoError(t, c.Init(backend.ChaChaModePoly1305Encrypt,
		bytes.Repeat([]byte{1}, 32), []byte("0123456789ab"), 0))

	require.NoError(t, c.UpdateAAD([]byte("abcd")))
	c.aadCount = math.MaxUint64 - 3

	require.ErrorIs(t, c.UpdateAAD([]byte("overflow")), ErrAADOverflow)
	assert.Equal(t, []byte("abcd"), c.aad)
	require.NoError(t, c.UpdateAAD([]byte("ok")))
}
