package db

import (
	"bufio"
	"encoding/binary"
	"io"
)

// scriptHeaderSize is the encoded size of one script-store record header:
// a Checksum, a uint32 kind, and a uint32 payload size (spec §4.F).
const scriptHeaderSize = ChecksumSize + 4 + 4

// readScripts parses the concatenated binary script blob from r, attaching
// each recognized script to its owning package (looked up by checksum in
// available). Records whose checksum is not present in available have their
// payload skipped rather than read (spec §4.F: "Unknown checksums skip the
// payload").
func readScripts(r io.Reader, available *Index[Checksum, *Package]) error {
	br := bufio.NewReader(r)
	header := make([]byte, scriptHeaderSize)

	for {
		if _, err := io.ReadFull(br, header); err != nil {
			if err == io.EOF {
				return nil
			}
			return errf(KindIO, "read_scripts", err, "reading script header")
		}

		var sum Checksum
		copy(sum[:], header[:ChecksumSize])
		kind := ScriptKind(binary.BigEndian.Uint32(header[ChecksumSize : ChecksumSize+4]))
		size := binary.BigEndian.Uint32(header[ChecksumSize+4:])

		pkg, ok := available.Get(sum)
		if !ok {
			if _, err := io.CopyN(io.Discard, br, int64(size)); err != nil {
				return errf(KindIO, "read_scripts", err, "skipping unknown script payload for %s", sum.Hex())
			}
			continue
		}

		data := make([]byte, size)
		if _, err := io.ReadFull(br, data); err != nil {
			return errf(KindIO, "read_scripts", err, "reading script payload for %s", sum.Hex())
		}
		pkg.addScript(&Script{Kind: kind, Data: data})
	}
}

// writeScripts serializes every script attached to any package in installed,
// in package order then per-package script order, to w (spec §4.F,
// §4.H write_config).
func writeScripts(w io.Writer, installed []*Package) error {
	header := make([]byte, scriptHeaderSize)
	for _, pkg := range installed {
		for _, s := range pkg.scripts {
			copy(header[:ChecksumSize], pkg.Checksum[:])
			binary.BigEndian.PutUint32(header[ChecksumSize:ChecksumSize+4], uint32(s.Kind))
			binary.BigEndian.PutUint32(header[ChecksumSize+4:], uint32(len(s.Data)))
			if _, err := w.Write(header); err != nil {
				return errf(KindIO, "write_scripts", err, "writing script header for %s", pkg.Checksum.Hex())
			}
			if _, err := w.Write(s.Data); err != nil {
				return errf(KindIO, "write_scripts", err, "writing script payload for %s", pkg.Checksum.Hex())
			}
		}
	}
	return nil
}

// scriptType maps an APK 1.0 script basename (spec §4.G install_entry,
// "var/db/apk/<name>/<version>/<kind>") to its ScriptKind, or
// ScriptInvalid if unrecognized.
func scriptType(name string) ScriptKind {
	switch name {
	case "pre-install":
		return ScriptPreInstall
	case "post-install":
		return ScriptPostInstall
	case "pre-upgrade":
		return ScriptPreUpgrade
	case "post-upgrade":
		return ScriptPostUpgrade
	case "pre-deinstall":
		return ScriptPreDeinstall
	case "post-deinstall":
		return ScriptPostDeinstall
	default:
		return ScriptInvalid
	}
}
