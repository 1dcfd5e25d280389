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
	"sync"

	"github.com/ebitengine/purego"
)

// cryptoLock is the mode bit that distinguishes a lock request from an
// unlock request in the legacy locking callback.
const cryptoLock = 1

// lockShim provides the process-wide mutex array that 1.0.x libraries
// require for thread safety. Later families manage locking internally
// and never need one.
type lockShim struct {
	mu        sync.Mutex
	installed bool
	locks     []sync.Mutex
	lockCB    uintptr
	idCB      uintptr
}

// install sizes the mutex array from CRYPTO_num_locks and registers the
// locking and thread-id callbacks. Safe to call more than once; only the
// first call takes effect.
func (s *lockShim) install(t *symbolTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed {
		return
	}

	n := t.cryptoNumLocks()
	if n <= 0 {
		n = 1
	}
	s.locks = make([]sync.Mutex, n)

	s.lockCB = purego.NewCallback(func(mode, idx int32, file uintptr, line int32) {
		if idx < 0 || int(idx) >= len(s.locks) {
			return
		}
		if mode&cryptoLock != 0 {
			s.locks[idx].Lock()
		} else {
			s.locks[idx].Unlock()
		}
	})
	s.idCB = purego.NewCallback(func(id uintptr) {
		t.threadIDSetNumeric(id, threadID())
	})

	t.cryptoSetLockingCallback(s.lockCB)
	t.threadIDSetCallback(s.idCB)
	s.installed = true
}

// uninstall clears the callbacks before releasing the mutex array so the
// library never observes a callback pointing at freed state. Idempotent.
func (s *lockShim) uninstall(t *symbolTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.installed {
		return
	}
	t.cryptoSetLockingCallback(0)
	t.threadIDSetCallback(0)
	s.locks = nil
	s.installed = false
}
