// Package namespace prefixes source ids from a fetched remote so that
// rows merged in by the Remote Gateway never collide with
// local source ids, without changing the remote's own identifiers.
package namespace

import "strings"

const sep = ":"

// Qualify prefixes a source id with the remote it was fetched from.
// Qualifying an already-qualified id is a no-op: ids namespaced for
// remote "r1" stay "r1:<id>" even if merged again.
func Qualify(remoteName, sourceID string) string {
	if remoteName == "" {
		return sourceID
	}
	if owner, _, ok := Split(sourceID); ok && owner == remoteName {
		return sourceID
	}
	return remoteName + sep + sourceID
}

// Split separates a namespaced source id into its owning remote name and
// the remote's own local source id. ok is false for unqualified
// (local-only) ids.
func Split(sourceID string) (remoteName, localID string, ok bool) {
	i := strings.Index(sourceID, sep)
	if i <= 0 {
		return "", sourceID, false
	}
	return sourceID[:i], sourceID[i+1:], true
}

// IsRemote reports whether a source id was namespaced for remoteName
// (or for any remote, if remoteName is "").
func IsRemote(sourceID, remoteName string) bool {
	owner, _, ok := Split(sourceID)
	if !ok {
		return false
	}
	return remoteName == "" || owner == remoteName
}
