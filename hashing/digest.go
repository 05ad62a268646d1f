// Package hashing computes the content-addressed slideId (spec.md §4.1,
// C1): a 256-bit digest of a file's bytes, streamed so the whole file is
// never held in memory. Uses blake2b rather than the teacher's own
// (OneOfOne/cespare) xxhash — see DESIGN.md for why a 64-bit
// non-cryptographic checksum cannot back the spec's global identity
// axiom.
package hashing

import (
	"encoding/hex"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/pathlake/slideagent/cmn"
)

// chunkSize balances syscall overhead against memory use across rotational
// and flash storage alike, per spec.md §4.1.
const chunkSize = 1 << 20 // 1 MiB

// DigestFile streams path through a 256-bit digest and returns it as 64
// lowercase hex characters — the slideId.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", cmn.NewError("hashing.digest", cmn.KindIO, "open", err)
	}
	defer f.Close()
	return DigestReader(f)
}

// DigestReader streams r through the digest. Used directly by tests and by
// callers that already have an open handle.
func DigestReader(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", cmn.NewError("hashing.digest", cmn.KindIO, "init hasher", err)
	}
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", cmn.NewError("hashing.digest", cmn.KindIO, "read", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
