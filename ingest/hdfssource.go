package ingest

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/colinmarc/hdfs/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/pathlake/slideagent/cmn"
)

// hdfsWalker is the alternate scanner-mount source reader of spec.md
// §4.6: when the configured scanner directory names an HDFS cluster
// (an "hdfs://namenode" prefix), files are walked and read through
// colinmarc/hdfs/v2 instead of the local filesystem, but the rest of the
// scraper — dedup, registration, enqueue — is identical.
type hdfsWalker struct {
	namenode string
}

func (w *hdfsWalker) client() (*hdfs.Client, error) {
	c, err := hdfs.New(w.namenode)
	if err != nil {
		return nil, cmn.NewError("ingest.hdfs", cmn.KindIO, "connect to namenode", err)
	}
	return c, nil
}

func (w *hdfsWalker) Walk(root string, fn func(path string, size int64) error) error {
	c, err := w.client()
	if err != nil {
		return err
	}
	defer c.Close()

	return c.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return fn(path, info.Size())
	})
}

// Digest streams an HDFS-resident file through the same blake2b content
// hash hashing.DigestFile uses for local files, since hashing.DigestFile
// opens its path on the local filesystem and an HDFS path is not one.
func (w *hdfsWalker) Digest(path string) (string, error) {
	c, err := w.client()
	if err != nil {
		return "", err
	}
	defer c.Close()

	f, err := c.Open(path)
	if err != nil {
		return "", cmn.NewError("ingest.hdfs", cmn.KindIO, "open hdfs file", err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", cmn.NewError("ingest.hdfs", cmn.KindIO, "init hasher", err)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", cmn.NewError("ingest.hdfs", cmn.KindIO, "read hdfs file", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
