package errors

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// ValidatePackageName validates a package name for safety and correctness.
// Package names become directory names in the workspace and keys in the
// dependency manifest, so the rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path separators or traversal sequences
//   - Maximum length of 128 characters
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 128 {
		return New(ErrCodeInvalidPackage, "package name too long (max 128 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	if !packageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid package name: %q", name)
	}

	return nil
}

// packageNameRegex matches recipe package names (boost, nlohmann_json, libdatachannel).
var packageNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_.+-]*$`)

// versionRegex matches recipe versions (1.84.0, 0.9.9.8, 3.2.1, cci.20230101).
var versionRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.+-]*$`)

// ValidateVersion validates a package version string.
func ValidateVersion(version string) error {
	if version == "" {
		return New(ErrCodeInvalidPackage, "version cannot be empty")
	}
	if !versionRegex.MatchString(version) {
		return New(ErrCodeInvalidPackage, "invalid version: %q", version)
	}
	return nil
}

// ValidatePath validates a path relative to a recipe directory for safety.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") || filepath.IsAbs(path) {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}

// ValidateSourceURL validates an upstream repository location.
// Remote URLs must use https, ssh, git or file schemes (or scp-like
// git@host:path syntax); anything else is treated as a local directory and
// must be absolute.
func ValidateSourceURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "source URL cannot be empty")
	}

	for _, scheme := range []string{"https://", "http://", "ssh://", "git://", "file://"} {
		if strings.HasPrefix(rawURL, scheme) {
			if len(rawURL) == len(scheme) {
				return New(ErrCodeInvalidInput, "source URL has no host: %q", rawURL)
			}
			return nil
		}
	}
	if scpLikeRegex.MatchString(rawURL) {
		return nil
	}
	if strings.Contains(rawURL, "://") {
		return New(ErrCodeInvalidInput, "unsupported source URL scheme: %q", rawURL)
	}
	if !filepath.IsAbs(rawURL) {
		return New(ErrCodeInvalidInput, "local source path must be absolute: %q", rawURL)
	}
	return nil
}

var scpLikeRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9._-]+:.+$`)
