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

// Package provider is the handle-based facade consumed by a managed
// cryptographic API. It owns the lazy backend load, maps opaque uint64
// context identifiers to cipher engines, and instruments every operation.
// When no native backend loads the provider stays alive and reports
// unavailability; supplying a software fallback is the caller's business.
package provider

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeremyhahn/go-libcrypto/internal/config"
	"github.com/jeremyhahn/go-libcrypto/pkg/backend"
	"github.com/jeremyhahn/go-libcrypto/pkg/backend/openssl"
	"github.com/jeremyhahn/go-libcrypto/pkg/cipher"
	"github.com/jeremyhahn/go-libcrypto/pkg/logging"
	"github.com/jeremyhahn/go-libcrypto/pkg/metrics"
)

var (
	// ErrUnknownContext is returned for context identifiers the provider
	// did not issue or has already destroyed.
	ErrUnknownContext = errors.New("provider: unknown context identifier")

	// ErrUnsupportedFamily is returned for algorithm families the
	// provider cannot construct an engine for.
	ErrUnsupportedFamily = errors.New("provider: unsupported algorithm family")
)

// InitParams carries one cipher initialization.
type InitParams struct {
	Direction backend.Direction
	Key       []byte
	IV        []byte

	// TagLen is the AEAD tag length in bytes. Zero selects 16.
	TagLen int

	// Counter is the initial block counter for the ChaCha20 keystream
	// mode. Zero selects the default of 1.
	Counter uint32
}

// engine is the operation surface shared by all cipher engines.
type engine interface {
	UpdateAAD(p []byte) error
	Update(in, out []byte) (int, error)
	Finalize(in, out []byte) (int, error)
	OutputSize(inputLen int) int
	Destroy() error
}

// gcmEngine adapts the GCM engine's accumulate-only Update to the shared
// surface.
type gcmEngine struct{ *cipher.GCM }

func (g gcmEngine) Update(in, out []byte) (int, error) { return g.GCM.Update(in) }

// cbcEngine rejects AAD, which only the AEAD engines accept.
type cbcEngine struct{ *cipher.CBC }

func (cbcEngine) UpdateAAD([]byte) error { return cipher.ErrStreamingUnsupported }

type entry struct {
	family backend.AlgorithmFamily
	eng    engine
	gcm    *cipher.GCM
	chacha *cipher.ChaCha20
	cbc    *cipher.CBC
}

// Provider maps opaque context identifiers to cipher engines on one
// backend. Safe for concurrent use across distinct contexts; a single
// context must be driven by one goroutine at a time.
type Provider struct {
	log       *logging.Logger
	backend   backend.Backend
	available atomic.Bool

	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]*entry
}

// New loads the native backend per cfg and returns a provider. A failed
// load is not an error here: the provider is returned unavailable and
// IsBackendAvailable reports it.
func New(cfg *config.Config) *Provider {
	if cfg == nil {
		cfg = config.FromEnv()
	}
	log := logging.NewLogger(cfg.Logging.Trace)
	if !cfg.Metrics.Enabled {
		metrics.Disable()
	}

	b, err := openssl.Load(openssl.Options{
		Dir:     cfg.Backend.Path,
		Library: cfg.Backend.Library,
		Logger:  log,
	})
	if err != nil {
		metrics.RecordBackendLoad(metrics.StatusError)
		log.Warnf("provider: native backend unavailable: %v", err)
		return &Provider{log: log, entries: make(map[uint64]*entry)}
	}
	metrics.RecordBackendLoad(metrics.StatusSuccess)
	log.Infof("provider: using %s", b.VersionText())
	p := &Provider{log: log, backend: b, entries: make(map[uint64]*entry)}
	p.available.Store(true)
	return p
}

// NewWithBackend wraps an already-loaded backend, primarily for tests and
// embedders that manage backend lifetime themselves.
func NewWithBackend(b backend.Backend, log *logging.Logger) *Provider {
	if log == nil {
		log = logging.NewLogger(false)
	}
	p := &Provider{log: log, backend: b, entries: make(map[uint64]*entry)}
	p.available.Store(b != nil)
	return p
}

// IsBackendAvailable reports the backend's version code when one loaded.
func (p *Provider) IsBackendAvailable() (uint64, bool) {
	if !p.available.Load() {
		return 0, false
	}
	return p.backend.Version(), true
}

// IsFIPSBackend reports whether the loaded backend runs in FIPS mode.
func (p *Provider) IsFIPSBackend() bool {
	return p.available.Load() && p.backend.FIPS()
}

// Backend returns the underlying backend, or nil when unavailable. The
// digest package consumes it directly.
func (p *Provider) Backend() backend.Backend {
	if !p.available.Load() {
		return nil
	}
	return p.backend
}

// VersionText returns the backend's banner, or empty when unavailable.
func (p *Provider) VersionText() string {
	if !p.available.Load() {
		return ""
	}
	return p.backend.VersionText()
}

// CreateContext allocates a cipher engine for family and returns its
// identifier.
func (p *Provider) CreateContext(family backend.AlgorithmFamily) (uint64, error) {
	if !p.available.Load() {
		return 0, backend.ErrBackendUnavailable
	}

	e := &entry{family: family}
	var err error
	switch family {
	case backend.FamilyGCM:
		e.gcm, err = cipher.NewGCM(p.backend)
		if e.gcm != nil {
			e.eng = gcmEngine{e.gcm}
		}
	case backend.FamilyChaCha20, backend.FamilyChaCha20Poly1305:
		e.chacha, err = cipher.NewChaCha20(p.backend)
		e.eng = e.chacha
	case backend.FamilyCBC:
		e.cbc, err = cipher.NewCBC(p.backend)
		if e.cbc != nil {
			e.eng = cbcEngine{e.cbc}
		}
	default:
		return 0, ErrUnsupportedFamily
	}
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.entries[id] = e
	p.mu.Unlock()

	metrics.IncrementActiveContexts()
	p.log.Debugf("provider: created %s context %d", family, id)
	return id, nil
}

// DestroyContext releases a context. Destroying an unknown or already
// destroyed identifier is a no-op.
func (p *Provider) DestroyContext(id uint64) error {
	p.mu.Lock()
	e, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	metrics.DecrementActiveContexts()
	p.log.Debugf("provider: destroyed context %d", id)
	return e.eng.Destroy()
}

func (p *Provider) entry(id uint64) (*entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return nil, ErrUnknownContext
	}
	return e, nil
}

// InitCipher binds key material and direction to a context. The ChaCha20
// families derive their backend mode from the family and direction.
func (p *Provider) InitCipher(id uint64, params InitParams) error {
	e, err := p.entry(id)
	if err != nil {
		return err
	}
	start := time.Now()

	tagLen := params.TagLen
	if tagLen == 0 {
		tagLen = 16
	}
	counter := params.Counter
	if counter == 0 {
		counter = 1
	}

	switch e.family {
	case backend.FamilyGCM:
		err = e.gcm.Init(params.Direction, params.Key, params.IV, tagLen)
	case backend.FamilyChaCha20:
		err = e.chacha.Init(backend.ChaChaModeStream, params.Key, params.IV, counter)
	case backend.FamilyChaCha20Poly1305:
		mode := backend.ChaChaModePoly1305Decrypt
		if params.Direction == backend.DirectionEncrypt {
			mode = backend.ChaChaModePoly1305Encrypt
		}
		err = e.chacha.Init(mode, params.Key, params.IV, counter)
	case backend.FamilyCBC:
		err = e.cbc.Init(params.Direction, params.Key, params.IV)
	}

	p.record(metrics.OpInit, e.family, start, err)
	return err
}

// UpdateAAD feeds associated data to an AEAD context.
func (p *Provider) UpdateAAD(id uint64, aad []byte) error {
	e, err := p.entry(id)
	if err != nil {
		return err
	}
	start := time.Now()
	err = e.eng.UpdateAAD(aad)
	p.record(metrics.OpUpdateAAD, e.family, start, err)
	return err
}

// Update processes in and reports bytes written to out. Engines that
// buffer (GCM both directions, ChaCha20-Poly1305 decryption) report zero.
func (p *Provider) Update(id uint64, in, out []byte) (int, error) {
	e, err := p.entry(id)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := e.eng.Update(in, out)
	p.record(metrics.OpUpdate, e.family, start, err)
	return n, err
}

// Finalize completes the operation with the final input chunk.
func (p *Provider) Finalize(id uint64, in, out []byte) (int, error) {
	e, err := p.entry(id)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := e.eng.Finalize(in, out)
	p.record(metrics.OpFinalize, e.family, start, err)
	if errors.Is(err, backend.ErrTagMismatch) {
		metrics.RecordTagMismatch(e.family.String())
	}
	return n, err
}

// OutputSize returns an upper bound on the bytes Finalize would write
// after consuming inputLen more input bytes on this context.
func (p *Provider) OutputSize(id uint64, inputLen int) (int, error) {
	e, err := p.entry(id)
	if err != nil {
		return 0, err
	}
	return e.eng.OutputSize(inputLen), nil
}

// Close destroys all live contexts and releases the backend.
func (p *Provider) Close() error {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[uint64]*entry)
	p.mu.Unlock()

	for range entries {
		metrics.DecrementActiveContexts()
	}
	for _, e := range entries {
		_ = e.eng.Destroy()
	}
	if p.available.CompareAndSwap(true, false) {
		return p.backend.Close()
	}
	return nil
}

func (p *Provider) record(op string, family backend.AlgorithmFamily, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.RecordOperation(op, family.String(), status, time.Since(start).Seconds())
}
