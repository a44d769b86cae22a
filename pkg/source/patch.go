package source

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	ferrors "github.com/matzehuels/stackforge/pkg/errors"
)

// Reason classifies why a patch did not apply.
type Reason string

const (
	ReasonContextMismatch Reason = "context-mismatch"
	ReasonMissingFile     Reason = "missing-file"
	ReasonAlreadyApplied  Reason = "already-applied"
	ReasonMalformed       Reason = "malformed"
)

// PatchError reports the patch that failed, the file it failed on, and why.
type PatchError struct {
	Patch  string
	File   string
	Reason Reason
	Err    error
}

func (e *PatchError) Error() string {
	msg := fmt.Sprintf("patch %s: %s", e.Patch, e.Reason)
	if e.File != "" {
		msg += " in " + e.File
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PatchError) Unwrap() error { return e.Err }

// change is one file rewrite computed before anything touches the tree.
type change struct {
	path    string
	remove  string // old path to delete (renames and deletions)
	content []byte
	mode    fs.FileMode
	delete  bool
}

// Apply applies a unified diff to the tree rooted at dir. Either every file
// in the patch is rewritten or none is. A patch whose changes are already
// present fails with ReasonAlreadyApplied.
func Apply(dir, name string, data []byte) error {
	files, _, err := gitdiff.Parse(bytes.NewReader(data))
	if err != nil {
		return &PatchError{Patch: name, Reason: ReasonMalformed, Err: err}
	}
	if len(files) == 0 {
		return &PatchError{Patch: name, Reason: ReasonMalformed, Err: errors.New("no file changes")}
	}

	changes := make([]change, 0, len(files))
	for _, f := range files {
		c, perr := plan(dir, f)
		if perr != nil {
			perr.Patch = name
			return perr
		}
		changes = append(changes, c)
	}

	for _, c := range changes {
		if err := commit(dir, c); err != nil {
			return &PatchError{Patch: name, File: c.path, Reason: ReasonContextMismatch, Err: err}
		}
	}
	return nil
}

func plan(dir string, f *gitdiff.File) (change, *PatchError) {
	if f.IsBinary {
		return change{}, &PatchError{File: displayName(f), Reason: ReasonMalformed, Err: errors.New("binary patches are not supported")}
	}
	for _, n := range []string{f.OldName, f.NewName} {
		if n == "" {
			continue
		}
		if err := ferrors.ValidatePath(n); err != nil {
			return change{}, &PatchError{File: n, Reason: ReasonMalformed, Err: err}
		}
	}

	switch {
	case f.IsNew:
		return planNew(dir, f)
	case f.IsDelete:
		return planDelete(dir, f)
	}

	oldPath := filepath.Join(dir, filepath.FromSlash(f.OldName))
	src, err := os.ReadFile(oldPath)
	if errors.Is(err, fs.ErrNotExist) {
		// A rename whose target already holds the patched content was applied before.
		if f.IsRename && applies(dir, f.NewName, reverse(f)) {
			return change{}, &PatchError{File: f.OldName, Reason: ReasonAlreadyApplied}
		}
		return change{}, &PatchError{File: f.OldName, Reason: ReasonMissingFile, Err: err}
	}
	if err != nil {
		return change{}, &PatchError{File: f.OldName, Reason: ReasonMissingFile, Err: err}
	}

	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(src), f); err != nil {
		target := f.OldName
		if f.IsRename {
			target = f.NewName
		}
		if applies(dir, target, reverse(f)) {
			return change{}, &PatchError{File: f.OldName, Reason: ReasonAlreadyApplied}
		}
		return change{}, &PatchError{File: f.OldName, Reason: ReasonContextMismatch, Err: err}
	}

	mode := fileMode(oldPath, f.NewMode)
	c := change{path: f.NewName, content: out.Bytes(), mode: mode}
	if f.IsRename {
		c.remove = f.OldName
	}
	return c, nil
}

func planNew(dir string, f *gitdiff.File) (change, *PatchError) {
	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(nil), f); err != nil {
		return change{}, &PatchError{File: f.NewName, Reason: ReasonMalformed, Err: err}
	}
	existing, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.NewName)))
	if err == nil {
		if bytes.Equal(existing, out.Bytes()) {
			return change{}, &PatchError{File: f.NewName, Reason: ReasonAlreadyApplied}
		}
		return change{}, &PatchError{File: f.NewName, Reason: ReasonContextMismatch, Err: errors.New("file to be created already exists")}
	}
	mode := f.NewMode
	if mode == 0 {
		mode = 0o644
	}
	return change{path: f.NewName, content: out.Bytes(), mode: mode.Perm()}, nil
}

func planDelete(dir string, f *gitdiff.File) (change, *PatchError) {
	src, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.OldName)))
	if errors.Is(err, fs.ErrNotExist) {
		return change{}, &PatchError{File: f.OldName, Reason: ReasonAlreadyApplied}
	}
	if err != nil {
		return change{}, &PatchError{File: f.OldName, Reason: ReasonMissingFile, Err: err}
	}
	var out bytes.Buffer
	if err := gitdiff.Apply(&out, bytes.NewReader(src), f); err != nil {
		return change{}, &PatchError{File: f.OldName, Reason: ReasonContextMismatch, Err: err}
	}
	return change{path: f.OldName, delete: true}, nil
}

func commit(dir string, c change) error {
	target := filepath.Join(dir, filepath.FromSlash(c.path))
	if c.delete {
		return os.Remove(target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(target, c.content, c.mode); err != nil {
		return err
	}
	if err := os.Chmod(target, c.mode); err != nil {
		return err
	}
	if c.remove != "" && c.remove != c.path {
		return os.Remove(filepath.Join(dir, filepath.FromSlash(c.remove)))
	}
	return nil
}

// applies reports whether f applies cleanly to the file at name.
func applies(dir, name string, f *gitdiff.File) bool {
	src, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return false
	}
	var out bytes.Buffer
	return gitdiff.Apply(&out, bytes.NewReader(src), f) == nil
}

// reverse returns the inverse of a text modification: additions become
// deletions and the old and new sides of every fragment swap.
func reverse(f *gitdiff.File) *gitdiff.File {
	r := &gitdiff.File{
		OldName: f.NewName,
		NewName: f.OldName,
		OldMode: f.NewMode,
		NewMode: f.OldMode,
	}
	for _, frag := range f.TextFragments {
		rf := &gitdiff.TextFragment{
			Comment:         frag.Comment,
			OldPosition:     frag.NewPosition,
			OldLines:        frag.NewLines,
			NewPosition:     frag.OldPosition,
			NewLines:        frag.OldLines,
			LinesAdded:      frag.LinesDeleted,
			LinesDeleted:    frag.LinesAdded,
			LeadingContext:  frag.LeadingContext,
			TrailingContext: frag.TrailingContext,
		}
		for _, line := range frag.Lines {
			switch line.Op {
			case gitdiff.OpAdd:
				line.Op = gitdiff.OpDelete
			case gitdiff.OpDelete:
				line.Op = gitdiff.OpAdd
			}
			rf.Lines = append(rf.Lines, line)
		}
		r.TextFragments = append(r.TextFragments, rf)
	}
	return r
}

func fileMode(path string, patchMode os.FileMode) fs.FileMode {
	if patchMode != 0 {
		return patchMode.Perm()
	}
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}

func displayName(f *gitdiff.File) string {
	if f.NewName != "" {
		return f.NewName
	}
	return f.OldName
}
