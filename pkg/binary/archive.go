package binary

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxMemberSize caps the size of an extracted executable.
const maxMemberSize = 256 << 20

// ArchiveFormat names how a download is packaged.
type ArchiveFormat string

const (
	FormatRaw   ArchiveFormat = "raw"
	FormatTarGz ArchiveFormat = "tar.gz"
	FormatZip   ArchiveFormat = "zip"
)

// FormatFromURL guesses the archive format from a download URL's suffix.
func FormatFromURL(u string) ArchiveFormat {
	lower := strings.ToLower(u)
	switch {
	case strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".tar.gz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	default:
		return FormatRaw
	}
}

// Extract returns the bytes of member from archive. Member names use forward
// slashes as both archive formats require. The member must be a non-empty
// regular file.
func Extract(format ArchiveFormat, archive []byte, member string) ([]byte, error) {
	member = path.Clean(strings.ReplaceAll(member, `\`, "/"))

	switch format {
	case FormatRaw:
		return archive, nil
	case FormatTarGz:
		return extractTarGz(archive, member)
	case FormatZip:
		return extractZip(archive, member)
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

func extractTarGz(archive []byte, member string) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("member %q not found in archive", member)
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if path.Clean(hdr.Name) != member {
			continue
		}
		if hdr.Typeflag != tar.TypeReg || hdr.Size == 0 {
			return nil, fmt.Errorf("member %q is empty or not a regular file", member)
		}
		return readCapped(tr)
	}
}

func extractZip(archive []byte, member string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	for _, f := range zr.File {
		if path.Clean(f.Name) != member {
			continue
		}
		if f.FileInfo().IsDir() || f.UncompressedSize64 == 0 {
			return nil, fmt.Errorf("member %q is empty or not a regular file", member)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open member: %w", err)
		}
		defer rc.Close()
		return readCapped(rc)
	}
	return nil, fmt.Errorf("member %q not found in archive", member)
}

func readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxMemberSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxMemberSize {
		return nil, fmt.Errorf("member exceeds %d bytes", maxMemberSize)
	}
	return data, nil
}
