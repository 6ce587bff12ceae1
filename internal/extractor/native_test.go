package extractor

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/teamcutter/gportal/internal/domain"
	"github.com/ulikunitz/xz"
)

var sampleFiles = map[string]string{
	"Foo/game.exe":        "MZ",
	"Foo/cheats/guide.md": "# Guide",
	"Foo/data/level1.dat": "level",
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func tarBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		tw.Write([]byte(body))
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeCompressed(t *testing.T, path string, data []byte, wrap func(io.Writer) (io.WriteCloser, error)) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w, err := wrap(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func assertFiles(t *testing.T, dest string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		data, err := os.ReadFile(filepath.Join(dest, name))
		if err != nil {
			t.Errorf("missing %s: %v", name, err)
			continue
		}
		if string(data) != body {
			t.Errorf("%s = %q, want %q", name, data, body)
		}
	}
}

func TestNativeExtractFormats(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		build func(t *testing.T, path string)
	}{
		{
			name: "zip",
			file: "foo.zip",
			build: func(t *testing.T, path string) {
				writeZip(t, path, sampleFiles)
			},
		},
		{
			name: "tar_gz",
			file: "foo.tar.gz",
			build: func(t *testing.T, path string) {
				writeCompressed(t, path, tarBytes(t, sampleFiles), func(w io.Writer) (io.WriteCloser, error) {
					return gzip.NewWriter(w), nil
				})
			},
		},
		{
			name: "tar_zst",
			file: "foo.tar.zst",
			build: func(t *testing.T, path string) {
				writeCompressed(t, path, tarBytes(t, sampleFiles), func(w io.Writer) (io.WriteCloser, error) {
					return zstd.NewWriter(w)
				})
			},
		},
		{
			name: "tar_xz",
			file: "foo.tar.xz",
			build: func(t *testing.T, path string) {
				writeCompressed(t, path, tarBytes(t, sampleFiles), func(w io.Writer) (io.WriteCloser, error) {
					return xz.NewWriter(w)
				})
			},
		},
		{
			name: "plain_tar",
			file: "foo.tar",
			build: func(t *testing.T, path string) {
				if err := os.WriteFile(path, tarBytes(t, sampleFiles), 0644); err != nil {
					t.Fatal(err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := filepath.Join(t.TempDir(), tt.file)
			tt.build(t, archive)
			dest := t.TempDir()

			res, err := NewNative().Extract(context.Background(), archive, dest)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if res.Tool != ToolBuiltin || res.ExitCode != 0 {
				t.Errorf("unexpected result %+v", res)
			}
			assertFiles(t, dest, sampleFiles)
		})
	}
}

func TestNativeRejectsTraversal(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "evil.zip")
	writeZip(t, archive, map[string]string{"../../escape.txt": "gotcha"})

	dest := filepath.Join(t.TempDir(), "dest")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}

	_, err := NewNative().Extract(context.Background(), archive, dest)
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt")); err == nil {
		t.Error("file escaped the destination")
	}
}

func TestNativeUnsupportedFormat(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "foo.rar")
	os.WriteFile(archive, []byte("Rar!"), 0644)

	_, err := NewNative().Extract(context.Background(), archive, t.TempDir())
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestNativeCorruptZip(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "foo.zip")
	os.WriteFile(archive, []byte("definitely not a zip"), 0644)

	_, err := NewNative().Extract(context.Background(), archive, t.TempDir())
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestDecompressSniffsCodec(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("payload"))
	zw.Close()

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{name: "gzip", data: gz.Bytes()},
		{name: "plain", data: []byte("payload")},
		{name: "broken_gzip", data: []byte{0x1f, 0x8b, 'x', 'x'}, wantErr: "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := decompress(bufio.NewReader(bytes.NewReader(tt.data)))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("decompress() error = %v, want mention of %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()

			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != "payload" {
				t.Errorf("decompressed %q, want payload", got)
			}
		})
	}
}
