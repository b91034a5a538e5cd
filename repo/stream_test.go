package repo

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minilinux/apk/db"
)

func TestHTTPStreamOpenerLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(path, []byte("local bytes"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	o := HTTPStreamOpener{}
	rc, err := o.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "local bytes" {
		t.Errorf("got %q, want %q", got, "local bytes")
	}
}

type memoryOpener struct{ data []byte }

func (m memoryOpener) Open(url string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func TestGzipIndexOpenerDecompresses(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	w.Write([]byte("P:foo\nV:1.0\n\n"))
	w.Close()

	opener := GzipIndexOpener{Inner: memoryOpener{data: gz.Bytes()}}
	rc, err := opener.Open("whatever")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "P:foo\nV:1.0\n\n" {
		t.Errorf("decompressed = %q", got)
	}
}

func TestTarArchiveIteratorWalksEntriesAndChecksum(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	dirHdr := &tar.Header{Name: "usr/bin/", Typeflag: tar.TypeDir, Mode: 0755}
	if err := tw.WriteHeader(dirHdr); err != nil {
		t.Fatalf("writing dir header: %v", err)
	}

	payload := []byte("payload bytes")
	var sum db.Checksum
	sum[0] = 0xAB
	fileHdr := &tar.Header{
		Name:       "usr/bin/foo",
		Typeflag:   tar.TypeReg,
		Mode:       0755,
		Size:       int64(len(payload)),
		PAXRecords: map[string]string{"APK.checksum": sum.Hex()},
	}
	if err := tw.WriteHeader(fileHdr); err != nil {
		t.Fatalf("writing file header: %v", err)
	}
	if _, err := tw.Write(payload); err != nil {
		t.Fatalf("writing file payload: %v", err)
	}
	tw.Close()

	var seen []db.ArchiveEntry
	it := TarArchiveIterator{}
	err := it.Iterate(&buf, func(entry db.ArchiveEntry, payload io.Reader) error {
		data, _ := io.ReadAll(payload)
		entry.Size = int64(len(data))
		seen = append(seen, entry)
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("saw %d entries, want 2", len(seen))
	}
	if !seen[0].IsDir() {
		t.Errorf("first entry should be a directory: %+v", seen[0])
	}
	if seen[1].IsDir() {
		t.Errorf("second entry should not be a directory: %+v", seen[1])
	}
	if seen[1].Checksum != sum {
		t.Errorf("checksum = %x, want %x", seen[1].Checksum, sum)
	}
}
