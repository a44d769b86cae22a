package source

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

// TreeDigest computes a content digest over a directory tree. Regular files
// contribute their slash-separated relative path, executable bit and
// contents; symlinks contribute their target. Version control metadata
// (.git directories and submodule .git files) is ignored, so the digest
// identifies the checked-out content only.
func TreeDigest(root string) (digest.Digest, error) {
	d := digest.Canonical.Digester()
	h := d.Hash()

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Name() == ".git" {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "L %s\x00%s\x00", rel, target)
		case info.Mode().IsRegular():
			kind := "F"
			if info.Mode()&0o111 != 0 {
				kind = "X"
			}
			fmt.Fprintf(h, "%s %s\x00%d\x00", kind, rel, info.Size())
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(h, f)
			f.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", root, err)
	}
	return d.Digest(), nil
}
