package dynamo

import (
	"errors"
	"fmt"
)

// Configuration errors abort a bake before any key is written.
var (
	ErrNoArmature  = errors.New("dynamo: no armature selected")
	ErrNoSelection = errors.New("dynamo: no bones selected")
	ErrFrameRange  = errors.New("dynamo: start frame is after end frame")
	ErrUnknownBone = errors.New("dynamo: unknown bone")
)

// Per-chain errors skip the chain; the bake continues.
var (
	ErrChainTooShort   = errors.New("dynamo: chain has fewer than 2 bones")
	ErrDegenerateBone  = errors.New("dynamo: bone has a degenerate rest transform")
	ErrUnstable        = errors.New("dynamo: simulation unstable (state diverged)")
	ErrMissingCollider = errors.New("dynamo: collider has no usable shape data")
)

// ErrCanceled indicates the bake was interrupted; nothing was committed.
var ErrCanceled = errors.New("dynamo: bake canceled")

// ChainError wraps a per-chain failure with the chain it belongs to.
type ChainError struct {
	Chain   string
	Root    string
	Frame   int
	Wrapped error
}

func (e *ChainError) Error() string {
	if e.Frame != 0 {
		return fmt.Sprintf("chain %s (root %s) at frame %d: %v", e.Chain, e.Root, e.Frame, e.Wrapped)
	}
	return fmt.Sprintf("chain %s (root %s): %v", e.Chain, e.Root, e.Wrapped)
}

func (e *ChainError) Unwrap() error {
	return e.Wrapped
}
