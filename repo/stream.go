package repo

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/minilinux/apk/db"
)

// HTTPStreamOpener is the default db.StreamOpener: plain net/http for
// remote URLs, plain os.Open for anything else, matching the teacher's own
// http.Get-or-local-file pattern (apt.Package.ContentHash).
type HTTPStreamOpener struct {
	Client *http.Client
}

// Open fetches url. http(s) URLs go through Client (or http.DefaultClient
// if nil); everything else is treated as a local filesystem path.
func (o HTTPStreamOpener) Open(url string) (io.ReadCloser, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		client := o.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Get(url)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
		}
		return resp.Body, nil
	}
	return os.Open(url)
}

// GzipIndexOpener wraps another StreamOpener, transparently gunzipping its
// result -- the shape the repository index fetch needs (spec §6
// "<url>/APK_INDEX.gz"), separate from the raw passthrough an archive
// fetch needs.
type GzipIndexOpener struct {
	Inner db.StreamOpener
}

// Open fetches url through Inner and returns a gunzip-decoding reader.
func (o GzipIndexOpener) Open(url string) (io.ReadCloser, error) {
	raw, err := o.Inner.Open(url)
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(raw)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return &gzipReadCloser{gz: gz, raw: raw}, nil
}

type gzipReadCloser struct {
	gz  *gzip.Reader
	raw io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	rawErr := g.raw.Close()
	if gzErr != nil {
		return gzErr
	}
	return rawErr
}

// TarArchiveIterator is the default db.ArchiveIterator: plain
// archive/tar, matching every archive walk the teacher and pack repos do
// (deb.NewRepository, deb.NewPackage).
type TarArchiveIterator struct{}

// Iterate walks stream as an uncompressed tar (the install engine's
// stream is already the raw archive payload; any outer compression is the
// StreamOpener's concern, matching GzipIndexOpener's split from
// HTTPStreamOpener above).
func (TarArchiveIterator) Iterate(stream io.Reader, fn func(db.ArchiveEntry, io.Reader) error) error {
	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		entry := db.ArchiveEntry{
			Name: strings.TrimPrefix(hdr.Name, "./"),
			Mode: uint32(hdr.Mode) | tarTypeBits(hdr.Typeflag),
			UID:  uint32(hdr.Uid),
			GID:  uint32(hdr.Gid),
			Size: hdr.Size,
		}
		if sum, ok := hdr.PAXRecords["APK.checksum"]; ok {
			if c, err := db.ParseChecksum(sum); err == nil {
				entry.Checksum = c
			}
		}

		if err := fn(entry, tr); err != nil {
			return err
		}
	}
}

// tarTypeBits maps a tar header's Typeflag onto the S_IFMT bits
// db.ArchiveEntry.IsDir tests, since archive/tar keeps them separate.
func tarTypeBits(flag byte) uint32 {
	switch flag {
	case tar.TypeDir:
		return 0040000
	case tar.TypeSymlink:
		return 0120000
	default:
		return 0100000
	}
}
