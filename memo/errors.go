package memo

import "errors"

// Sentinel errors forming the retrieve/write/storage-declined/decode
// taxonomy. Callers should test with errors.Is; packages built on top of
// memo (slab, stash, context, peering) wrap these with pkg/errors context
// rather than minting new sentinels.
var (
	ErrNotFound            = errors.New("memo: not found")
	ErrNotFoundLocally     = errors.New("memo: not found locally")
	ErrNotFoundByDeadline  = errors.New("memo: not found by deadline")
	ErrInsufficientPeering = errors.New("memo: insufficient peering")
	ErrInvalidHead         = errors.New("memo: invalid head")
	ErrIndexNotInitialized = errors.New("memo: index not initialized")
	ErrSlabUnreachable     = errors.New("memo: slab unreachable")
	ErrDecodeFailed        = errors.New("memo: decode failed")
)
