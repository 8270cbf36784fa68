package slab

import "github.com/pkg/errors"

// Sentinel errors specific to slab-level operations. Lower-level causes
// from the memo package (memo.ErrNotFound and friends) are wrapped with
// pkg/errors context rather than replaced.
var (
	ErrClosed           = errors.New("slab: closed")
	ErrSelfPeering      = errors.New("slab: refusing to peer a slab with itself")
	ErrStorageDeclined  = errors.New("slab: storage operation declined")
	ErrRemoteNotAllowed = errors.New("slab: memo not resident and remote fetch not allowed")
)
