package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	ferrors "github.com/matzehuels/stackforge/pkg/errors"
	"github.com/matzehuels/stackforge/pkg/observability"
	"github.com/matzehuels/stackforge/pkg/shell"
)

// Fetcher materializes an upstream source at spec.Revision into dest.
// dest exists and is empty when Fetch is called.
type Fetcher interface {
	Fetch(ctx context.Context, spec Spec, dest string) error
}

// GitFetcher fetches with the git command line client.
type GitFetcher struct {
	Exec   shell.Executor
	Git    string // program name, "git" when empty
	Logger *log.Logger
}

// NewGitFetcher returns a fetcher running git through exec.
func NewGitFetcher(exec shell.Executor, logger *log.Logger) *GitFetcher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &GitFetcher{Exec: exec, Git: "git", Logger: logger}
}

// Fetch clones spec.URL, checks out spec.Revision and initializes submodules
// recursively with the configured history depth.
func (g *GitFetcher) Fetch(ctx context.Context, spec Spec, dest string) error {
	steps := []struct {
		name string
		args []string
		dir  string
	}{
		{"clone", []string{"clone", "--quiet", spec.URL, dest}, ""},
		{"checkout", []string{"-c", "advice.detachedHead=false", "checkout", "--quiet", spec.Revision}, dest},
	}
	if spec.Submodules {
		args := []string{"submodule", "update", "--init", "--recursive"}
		if spec.SubmoduleDepth > 0 {
			args = append(args, "--depth", strconv.Itoa(spec.SubmoduleDepth))
		}
		steps = append(steps, struct {
			name string
			args []string
			dir  string
		}{"submodules", args, dest})
	}

	git := g.Git
	if git == "" {
		git = "git"
	}
	for _, s := range steps {
		g.Logger.Debug("git", "step", s.name, "url", spec.URL, "revision", spec.Revision)
		start := time.Now()
		_, err := g.Exec.Run(ctx, shell.Command{Name: git, Args: s.args, Dir: s.dir})
		observability.Tool().OnCommand(ctx, "git", s.name, time.Since(start), err)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			var exitErr *shell.ExitError
			if errors.As(err, &exitErr) {
				return ferrors.Wrap(ferrors.ErrCodeAcquisition, err, "git %s: %s", s.name, strings.TrimSpace(string(exitErr.Output)))
			}
			return ferrors.Wrap(ferrors.ErrCodeAcquisition, err, "git %s", s.name)
		}
	}
	return nil
}

// DirFetcher exports a local directory tree, for vendored or mirrored
// sources. The revision is recorded but not interpreted. Version control
// metadata is not copied.
type DirFetcher struct{}

// Fetch copies the directory named by spec.URL (an absolute path or a
// file:// URL) into dest.
func (DirFetcher) Fetch(ctx context.Context, spec Spec, dest string) error {
	root := strings.TrimPrefix(spec.URL, "file://")
	info, err := os.Stat(root)
	if err != nil {
		return ferrors.Wrap(ferrors.ErrCodeAcquisition, err, "source %s", spec.URL)
	}
	if !info.IsDir() {
		return ferrors.New(ferrors.ErrCodeAcquisition, "source %s is not a directory", spec.URL)
	}
	if err := copyTree(ctx, root, dest); err != nil {
		return ferrors.Wrap(ferrors.ErrCodeAcquisition, err, "copy %s", spec.URL)
	}
	return nil
}

func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.Name() == ".git" {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case entry.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		}
		return fmt.Errorf("unsupported file type %s: %s", info.Mode().Type(), rel)
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var (
	_ Fetcher = (*GitFetcher)(nil)
	_ Fetcher = DirFetcher{}
)
