package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// maxZIPEntry caps the decompressed size of an archived statement.
const maxZIPEntry = 64 << 20

// SingleFromZIP returns the name and content of the only file in an archive.
// Directories and macOS resource forks are ignored.
func SingleFromZIP(data []byte) (string, []byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open archive")
	}

	var files []*zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(path.Base(f.Name), "._") {
			continue
		}
		files = append(files, f)
	}
	if len(files) != 1 {
		return "", nil, eris.Errorf("zip: expected exactly 1 file, got %d", len(files))
	}

	f := files[0]
	rc, err := f.Open()
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	content, err := io.ReadAll(io.LimitReader(rc, maxZIPEntry+1))
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: read entry")
	}
	if len(content) > maxZIPEntry {
		return "", nil, eris.Errorf("zip: entry %s exceeds %d bytes", f.Name, maxZIPEntry)
	}
	return path.Base(f.Name), content, nil
}
