package repo

import (
	"io"
	"strings"

	"github.com/minilinux/apk/db"
)

// DefaultIndexOpener returns the StreamOpener that resolves
// "<url>/APK_INDEX.gz" fetches: plain HTTP/file fetch composed with
// transparent gunzip (spec §6 "Repository layout").
func DefaultIndexOpener() db.StreamOpener {
	return GzipIndexOpener{Inner: HTTPStreamOpener{}}
}

// DefaultArchiveOpener returns the StreamOpener that resolves
// "<url>/<name>-<version>.apk" fetches: a raw passthrough, since package
// archives carry their own internal structure for the ArchiveIterator to
// walk (spec §6 "Repository layout").
func DefaultArchiveOpener() db.StreamOpener {
	return HTTPStreamOpener{}
}

// UnionStreamOpener dispatches to Index for URLs ending in ".gz" and to
// Archive for everything else, so a single db.StreamOpener value can serve
// both of Database's roles (index fetch and archive fetch) as named in
// db/collaborators.go.
type UnionStreamOpener struct {
	Index   db.StreamOpener
	Archive db.StreamOpener
}

// NewDefaultStreamOpener wires the default index and archive openers
// together behind one db.StreamOpener.
func NewDefaultStreamOpener() db.StreamOpener {
	return UnionStreamOpener{Index: DefaultIndexOpener(), Archive: DefaultArchiveOpener()}
}

func (u UnionStreamOpener) Open(url string) (io.ReadCloser, error) {
	if strings.HasSuffix(url, ".gz") {
		return u.Index.Open(url)
	}
	return u.Archive.Open(url)
}
