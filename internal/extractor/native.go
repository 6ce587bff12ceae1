package extractor

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/teamcutter/gportal/internal/domain"
)

var tarExts = []string{".tar.gz", ".tar.zst", ".tar.xz", ".tar.bz2", ".tgz", ".txz", ".tzst", ".tbz2", ".tar"}

// codec recognises a compressed tar stream by its leading bytes.
type codec struct {
	name  string
	magic []byte
	open  func(io.Reader) (io.ReadCloser, error)
}

// https://gist.github.com/leommoore/f9e57ba2aa4bf197ebc5
var codecs = []codec{
	{name: "zstd", magic: []byte{0x28, 0xb5, 0x2f, 0xfd}, open: func(r io.Reader) (io.ReadCloser, error) {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}},
	{name: "gzip", magic: []byte{0x1f, 0x8b}, open: func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	}},
	{name: "xz", magic: []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, open: func(r io.Reader) (io.ReadCloser, error) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	}},
	{name: "bzip2", magic: []byte("BZh"), open: func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(bzip2.NewReader(r)), nil
	}},
}

// NativeExtractor unpacks zip and tar archives in-process.
type NativeExtractor struct{}

func NewNative() *NativeExtractor {
	return &NativeExtractor{}
}

func (ne *NativeExtractor) Extract(ctx context.Context, src, dst string) (domain.ExtractResult, error) {
	res := domain.ExtractResult{Tool: ToolBuiltin}
	lower := strings.ToLower(src)

	var err error
	switch {
	case strings.HasSuffix(lower, ".zip"):
		err = ne.unzip(ctx, src, dst)
	case isTarArchive(lower):
		err = ne.untar(ctx, src, dst)
	default:
		err = fmt.Errorf("unsupported archive format: %s", src)
	}

	if err != nil {
		res.ExitCode = 1
		return res, &domain.ExtractError{Tool: ToolBuiltin, ExitCode: 1, Err: err}
	}
	return res, nil
}

func (ne *NativeExtractor) unzip(ctx context.Context, src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(dst, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("zip %s: %w", f.Name, err)
		}
		err = writeMember(target, f.Mode(), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (ne *NativeExtractor) untar(ctx context.Context, src, dst string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	stream, err := decompress(bufio.NewReader(file))
	if err != nil {
		return err
	}
	defer stream.Close()

	tr := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		target, err := safeJoin(dst, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0755)
		case tar.TypeReg:
			err = writeMember(target, hdr.FileInfo().Mode(), tr)
		case tar.TypeSymlink:
			err = writeSymlink(target, hdr.Linkname)
		}
		if err != nil {
			return err
		}
	}
}

// decompress sniffs the stream and wraps it in the matching codec. Streams
// with no known magic are read as a plain tar.
func decompress(br *bufio.Reader) (io.ReadCloser, error) {
	head, _ := br.Peek(6)
	for _, c := range codecs {
		if !bytes.HasPrefix(head, c.magic) {
			continue
		}
		rc, err := c.open(br)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		return rc, nil
	}
	return io.NopCloser(br), nil
}

func writeMember(target string, mode fs.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeSymlink recreates a relative link. Absolute targets are skipped.
func writeSymlink(target, link string) error {
	if filepath.IsAbs(link) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Symlink(link, target)
}

func isTarArchive(name string) bool {
	for _, ext := range tarExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// safeJoin joins an archive member name onto dst, rejecting names that
// would land outside of it.
func safeJoin(dst, name string) (string, error) {
	root := filepath.Clean(dst)
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return target, nil
}
