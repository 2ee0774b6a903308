// Package version identifies this build's v2 vocabulary revision and
// negotiates compatibility with a connecting peer.
package version

import (
	"fmt"

	"github.com/blang/semver"
)

// CURRENT_VERSION identifies the v2 wire vocabulary this build speaks —
// the global type table (remap.GlobalTypes) and protocol interfaces
// registered by this process. A major bump means the vocabulary itself
// changed incompatibly; minor/patch are additive.
var CURRENT_VERSION = semver.MustParse("2.0.0")

// ErrVersionMismatch is returned by Negotiate when the peer's major
// version differs from ours — the wire-level VERSION_MISMATCH
// identifier from spec.md §6.
var ErrVersionMismatch = fmt.Errorf("version: peer major version does not match %s", CURRENT_VERSION)

// Negotiate parses peerVersion and checks it against CURRENT_VERSION.
// Only the major component gates compatibility, per semver's own
// contract: two builds sharing a major version are expected to
// understand the same vocabulary even if one is ahead on minor/patch.
func Negotiate(peerVersion string) (semver.Version, error) {
	peer, err := semver.Parse(peerVersion)
	if err != nil {
		return semver.Version{}, err
	}
	if peer.Major != CURRENT_VERSION.Major {
		return peer, ErrVersionMismatch
	}
	return peer, nil
}
