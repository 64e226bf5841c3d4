// Package source acquires audio input and exposes it as fixed-size blocks
// of float32 samples. Acquisition is a two-step protocol: the orchestrator
// resolves a device into an opaque handle, and the capture worker redeems
// that handle exactly once to open the underlying source.
package source

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/tapcast/tapcast/internal/types"
)

// ErrNoDevice is returned when no audio input device is available.
var ErrNoDevice = errors.New("no audio input device found")

// ErrHandleUnknown is returned when a handle was never issued or was
// already redeemed.
var ErrHandleUnknown = errors.New("unknown or expired stream handle")

// Source is an open audio input delivering fixed-size sample blocks.
type Source interface {
	// ReadBlock fills dst with the next types.BlockSamples samples,
	// blocking until a full block is available. dst must have capacity
	// for types.BlockSamples entries.
	ReadBlock(ctx context.Context, dst []float32) error

	// Close releases the input. Further ReadBlock calls fail.
	Close() error
}

// Opener opens the capture source behind a redeemed handle. The production
// opener spawns a capture subprocess; tests substitute synthetic sources.
type Opener interface {
	Open(ctx context.Context, device string) (Source, error)
}

// Resolver issues one-shot stream handles for capture devices. Resolving
// validates that capture is possible at all; redeeming the handle opens
// the actual input. A handle is consumed on first redemption.
type Resolver struct {
	opener Opener

	mu      sync.Mutex
	pending map[types.StreamHandle]string
}

// NewResolver returns a resolver that opens sources through op.
func NewResolver(op Opener) *Resolver {
	return &Resolver{
		opener:  op,
		pending: make(map[types.StreamHandle]string),
	}
}

// Resolve validates the requested device and issues a fresh handle for it.
// An empty device selects the platform default, auto-detecting when the
// platform has none.
func (r *Resolver) Resolve(device string) (types.StreamHandle, error) {
	resolved, err := resolveDevice(device)
	if err != nil {
		return "", err
	}

	handle, err := newHandle()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.pending[handle] = resolved
	r.mu.Unlock()
	return handle, nil
}

// Redeem consumes the handle and opens its source. A handle can be
// redeemed at most once; a second redemption fails with ErrHandleUnknown.
func (r *Resolver) Redeem(ctx context.Context, handle types.StreamHandle) (Source, error) {
	r.mu.Lock()
	device, ok := r.pending[handle]
	if ok {
		delete(r.pending, handle)
	}
	r.mu.Unlock()

	if !ok {
		return nil, ErrHandleUnknown
	}
	return r.opener.Open(ctx, device)
}

// Discard drops a pending handle without opening it. Used when the
// session is aborted between resolution and redemption.
func (r *Resolver) Discard(handle types.StreamHandle) {
	r.mu.Lock()
	delete(r.pending, handle)
	r.mu.Unlock()
}

// resolveDevice maps an empty device to the platform default or the first
// detected input.
func resolveDevice(device string) (string, error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}
	if device == "" {
		devices := Devices()
		if len(devices) == 0 {
			return "", ErrNoDevice
		}
		device = devices[0].ID
	}
	return device, nil
}

func newHandle() (types.StreamHandle, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate stream handle: %w", err)
	}
	return types.StreamHandle(hex.EncodeToString(buf)), nil
}
