package cacache

import (
	"path/filepath"

	"github.com/gophersatwork/cacache/integrity"
)

// contentVersion must be bumped on any incompatible change to the content
// layout. Old trees are not migrated.
const contentVersion = "2"

// contentDir returns the root of all content for this layout version.
func contentDir(root string) string {
	return filepath.Join(root, "content-v"+contentVersion)
}

// contentPath returns the canonical location of the content named by sri:
//
//	root/content-v2/<algorithm>/<hex[0:2]>/<hex[2:4]>/<hex[4:]>
//
// Only the preferred hash of sri is used.
func contentPath(root string, sri integrity.Integrity) string {
	alg, hex := sri.ToHex()
	return shardedPath(filepath.Join(contentDir(root), string(alg)), hex)
}

// shardedPath splits hex into two 2-character directory levels to bound
// directory fan-out. Values too short to shard are used as-is.
func shardedPath(dir, hex string) string {
	if len(hex) < 4 {
		return filepath.Join(dir, hex)
	}
	return filepath.Join(dir, hex[0:2], hex[2:4], hex[4:])
}
