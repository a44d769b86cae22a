package pkginfo

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackforge/pkg/errors"
)

// FileName is the package-info document written into every install root.
const FileName = "package-info.yaml"

// Store persists published package-info documents.
type Store interface {
	Save(ctx context.Context, info *Info) error
	Load(ctx context.Context, name, version string) (*Info, error)
	List(ctx context.Context) ([]*Info, error)
	// Delete withdraws name/version. Deleting a missing document is not an error.
	Delete(ctx context.Context, name, version string) error
	Close() error
}

// WriteFile writes info as YAML to dir/package-info.yaml.
func WriteFile(dir string, info *Info) error {
	data, err := yaml.Marshal(info)
	if err != nil {
		return errors.Wrap(errors.ErrCodePackaging, err, "encode package-info")
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodePackaging, err, "write package-info")
	}
	return nil
}

// ReadFile reads dir/package-info.yaml.
func ReadFile(dir string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "no package-info in %s", dir)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read package-info")
	}
	var info Info
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "decode %s", filepath.Join(dir, FileName))
	}
	return &info, nil
}

// FileStore keeps documents in a directory tree: <root>/<name>/<version>/package-info.yaml.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: dir}, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

// Save writes info, replacing any earlier document for the same reference.
func (s *FileStore) Save(ctx context.Context, info *Info) error {
	if err := errors.ValidatePackageName(info.Name); err != nil {
		return err
	}
	if err := errors.ValidateVersion(info.Version); err != nil {
		return err
	}
	dir := filepath.Join(s.root, info.Name, info.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create %s", dir)
	}
	return WriteFile(dir, info)
}

// Load reads the document for name/version.
func (s *FileStore) Load(ctx context.Context, name, version string) (*Info, error) {
	if err := errors.ValidatePackageName(name); err != nil {
		return nil, err
	}
	if err := errors.ValidateVersion(version); err != nil {
		return nil, err
	}
	return ReadFile(filepath.Join(s.root, name, version))
}

// List returns every stored document ordered by reference.
func (s *FileStore) List(ctx context.Context) ([]*Info, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "*", "*", FileName))
	if err != nil {
		return nil, err
	}
	out := make([]*Info, 0, len(matches))
	for _, m := range matches {
		info, err := ReadFile(filepath.Dir(m))
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].Ref(), out[j].Ref()) < 0
	})
	return out, nil
}

// Delete removes the document for name/version and its empty version directory.
func (s *FileStore) Delete(ctx context.Context, name, version string) error {
	if err := errors.ValidatePackageName(name); err != nil {
		return err
	}
	if err := errors.ValidateVersion(version); err != nil {
		return err
	}
	dir := filepath.Join(s.root, name, version)
	if err := os.Remove(filepath.Join(dir, FileName)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeInternal, err, "delete %s/%s", name, version)
	}
	_ = os.Remove(dir)
	return nil
}

// Close does nothing for file stores.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
