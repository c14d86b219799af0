package registry

import (
	"io"
	"os"
	"path/filepath"

	archive "github.com/moby/go-archive"
)

// extractArchive unpacks a tar (optionally gzip-compressed) stream
// into staging.
func extractArchive(r io.Reader, staging string) error {
	return archive.Untar(r, staging, &archive.TarOptions{NoLchown: true})
}

// copyLocalPath copies a local adapter source tree into staging,
// preserving the directory structure.
func copyLocalPath(src, staging string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(staging, rel)
		if info.IsDir() {
			return os.MkdirAll(dest, info.Mode())
		}
		data, err := os.ReadFile(path) // #nosec G304 -- src is an operator-supplied local adapter path, not untrusted input
		if err != nil {
			return err
		}
		return os.WriteFile(dest, data, info.Mode())
	})
}
