// Package shard maps tile ids onto a two-level directory tree.
//
// The directory pair is derived from the sha256 digest of the id's decimal
// form, so it is computed rather than allocated: no registry, no locking and
// the same answer on every run. Two hex digits per level give 256×256
// buckets, which keeps per-directory entry counts around count/65536.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
)

// Of returns the two directory levels for a tile id.
func Of(tileID int64) (string, string) {
	sum := sha256.Sum256([]byte(strconv.FormatInt(tileID, 10)))
	digest := hex.EncodeToString(sum[:2])
	return digest[:2], digest[2:4]
}

// Path returns the relative "l1/l2" shard path for a tile id.
func Path(tileID int64) string {
	l1, l2 := Of(tileID)
	return filepath.Join(l1, l2)
}

// TileDir returns the workspace directory owned by a tile:
// root/l1/l2/{vectorBasename}_{tileID}.
func TileDir(root, vectorBasename string, tileID int64) string {
	return filepath.Join(root, Path(tileID), fmt.Sprintf("%s_%d", vectorBasename, tileID))
}
