// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrSymlinkLoop is returned when a symlink in the source tree points back
// to a directory that encloses it.
var ErrSymlinkLoop = errors.New("symlink loop in source tree")

// CalculateFileHash calculates SHA256 hash of a file's contents.
func CalculateFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateDirHash hashes the relative path, executable bit and content of
// every regular file CopyDir would copy from dirPath. Timestamps are
// ignored, so two checkouts of the same tree hash equal.
func CalculateDirHash(dirPath string, excludes []string) (string, error) {
	h := sha256.New()

	err := walkTree(dirPath, excludes, func(rel, path string, info fs.FileInfo) error {
		if info.IsDir() {
			return nil
		}
		fileHash, err := CalculateFileHash(path)
		if err != nil {
			return err
		}
		// Entries are visited in lexical order, so the sequence is stable.
		fmt.Fprintf(h, "%s\x00%t\x00%s\n", filepath.ToSlash(rel), info.Mode()&0o111 != 0, fileHash)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", dirPath, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// walkTree calls fn for root, then for every directory and regular file
// below it whose base name is not excluded, in lexical order. Symlinks are
// followed and other special files are skipped. A link back to an
// enclosing directory fails with ErrSymlinkLoop.
func walkTree(root string, excludes []string, fn func(rel, path string, info fs.FileInfo) error) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}
	return walkDir(root, ".", info, excludes, map[string]bool{}, fn)
}

func walkDir(path, rel string, info fs.FileInfo, excludes []string, active map[string]bool, fn func(rel, path string, info fs.FileInfo) error) error {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if active[resolved] {
		return fmt.Errorf("%w: %s", ErrSymlinkLoop, path)
	}
	active[resolved] = true
	defer delete(active, resolved)

	if err := fn(rel, path, info); err != nil {
		return err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}
	for _, entry := range entries {
		if Excluded(entry.Name(), excludes) {
			continue
		}
		childPath := filepath.Join(path, entry.Name())
		childRel := filepath.Join(rel, entry.Name())

		childInfo, err := os.Stat(childPath)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", childPath, err)
		}
		switch {
		case childInfo.IsDir():
			if err := walkDir(childPath, childRel, childInfo, excludes, active, fn); err != nil {
				return err
			}
		case childInfo.Mode().IsRegular():
			if err := fn(childRel, childPath, childInfo); err != nil {
				return err
			}
		}
	}
	return nil
}

// Excluded reports whether name matches any of the glob patterns.
func Excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok { // Malformed pattern never matches
			return true
		}
	}
	return false
}

// CopyFile copies a file from src to dst.
func CopyFile(src, dst string) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }() // Read-only file; close error non-critical

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dstFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	return nil
}

// CopyDir recursively copies src to dst, skipping entries whose base name
// matches one of excludes. It copies exactly the files CalculateDirHash
// hashes.
func CopyDir(src, dst string, excludes []string) error {
	return walkTree(src, excludes, func(rel, path string, info fs.FileInfo) error {
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			if err := os.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create destination directory: %w", err)
			}
			return nil
		}
		return CopyFile(path, target)
	})
}
