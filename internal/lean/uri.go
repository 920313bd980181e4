package lean

import (
	"fmt"
	"path/filepath"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// FileURI converts an absolute path to a percent-encoded file:// URI.
func FileURI(path string) (protocol.DocumentURI, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("uri for %q: %w", path, ErrRelativePath)
	}
	return protocol.DocumentURI(uri.File(path)), nil
}

// PathFromURI is the inverse of FileURI.
func PathFromURI(u protocol.DocumentURI) string {
	return uri.URI(u).Filename()
}
