package zip

import (
	"archive/zip"
	"bytes"
)

// Entry is one file in a job bundle.
type Entry struct {
	Name string
	Data []byte
}

// Bundle packs job outputs into a single zip blob. Entries that cannot be
// created are skipped; a write failure aborts and returns nil.
func Bundle(entries []Entry) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Name)
		if err != nil {
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
