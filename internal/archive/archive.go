// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive bundles the output directory into a zip file for bulk
// download.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileName is the archive's name inside the output directory.
const FileName = "articles.zip"

// Path returns the archive location inside outputDir.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Build zips every regular file under outputDir, recursively, into a fresh
// archive at Path(outputDir) and returns that path. Files named FileName
// are skipped, as are in-progress temp files. Entries are flattened to base names; when two files share a
// base name the one walked last wins.
func Build(outputDir string) (string, error) {
	archivePath := Path(outputDir)
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("removing stale archive: %w", err)
	}

	entries, err := collect(outputDir)
	if err != nil {
		return "", err
	}

	// Built under a temp name; a failed build leaves no archive.
	tmp, err := os.CreateTemp(outputDir, ".archive-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	tmpPath := tmp.Name()

	zw := zip.NewWriter(tmp)
	writeErr := writeEntries(zw, entries)
	if closeErr := zw.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpPath)
		return "", writeErr
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("setting archive mode: %w", err)
	}

	if err := os.Rename(tmpPath, archivePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming archive: %w", err)
	}
	return archivePath, nil
}

// collect maps entry names to source paths.
func collect(outputDir string) (map[string]string, error) {
	entries := make(map[string]string)
	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		if name == FileName || isWorkFile(name) {
			return nil
		}
		entries[name] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", outputDir, err)
	}
	return entries, nil
}

// isWorkFile reports whether name is an in-progress download or archive
// temp file.
func isWorkFile(name string) bool {
	return strings.HasSuffix(name, ".tmp") &&
		(strings.HasPrefix(name, ".fetch-") || strings.HasPrefix(name, ".archive-"))
}

func writeEntries(zw *zip.Writer, entries map[string]string) error {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := addFile(zw, name, entries[name]); err != nil {
			return err
		}
	}
	return nil
}

func addFile(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", path, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
