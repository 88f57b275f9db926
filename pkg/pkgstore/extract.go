// SPDX-License-Identifier: MPL-2.0

package pkgstore

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// maxExtractBytes bounds the total uncompressed size of one package.
const maxExtractBytes = 512 << 20

// ErrUnsafeArchive indicates a tarball entry that would escape the package
// directory or create a link.
var ErrUnsafeArchive = errors.New("unsafe archive entry")

// extractTarball unpacks a gzip-compressed package tarball into dst. The
// first path component ("package/" in registry tarballs) is stripped.
func extractTarball(r io.Reader, dst string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	var total int64
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchive, hdr.Name)
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		rel, ok := stripFirstComponent(hdr.Name)
		if !ok {
			continue
		}
		if !isSafeRelPath(rel) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchive, hdr.Name)
		}
		target := filepath.Join(dst, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			total += hdr.Size
			if total > maxExtractBytes {
				return fmt.Errorf("package exceeds %d bytes uncompressed", maxExtractBytes)
			}
			if err := writeEntry(tr, target, hdr); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			return fmt.Errorf("%w: link %s", ErrUnsafeArchive, hdr.Name)
		default:
			// Global headers, devices and FIFOs carry nothing a package needs.
		}
	}
}

func writeEntry(r io.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if hdr.Mode&0o111 != 0 {
		mode = 0o755
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(f, r, hdr.Size); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", hdr.Name, err)
	}
	return f.Close()
}

// stripFirstComponent drops the leading directory of an archive path.
// It reports false for entries that are the top directory itself.
func stripFirstComponent(name string) (string, bool) {
	name = strings.TrimPrefix(strings.ReplaceAll(name, `\`, "/"), "./")
	_, rest, ok := strings.Cut(name, "/")
	if !ok || strings.Trim(rest, "/") == "" {
		return "", false
	}
	return rest, true
}

func isSafeRelPath(rel string) bool {
	if path.IsAbs(rel) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return false
	}
	clean := path.Clean(rel)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
