package lean

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bollu/elide-sub000/internal/config"
)

// ServerCommand is a resolved language server invocation.
type ServerCommand struct {
	Name string
	Args []string
	Dir  string
	// Workspace is set when Dir is a project root found by manifest search.
	Workspace bool
}

// FindProjectRoot walks up from dir looking for any of the manifest file
// names. It gives up after depth directories or at the filesystem root.
func FindProjectRoot(dir string, manifests []string, depth int) (string, bool) {
	for i := 0; i < depth; i++ {
		for _, m := range manifests {
			if fi, err := os.Stat(filepath.Join(dir, m)); err == nil && !fi.IsDir() {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// SelectServer picks the workspace server when docPath lives inside a
// project and the single-file server otherwise.
func SelectServer(docPath string, cfg config.Server) (ServerCommand, error) {
	if !filepath.IsAbs(docPath) {
		return ServerCommand{}, fmt.Errorf("select server for %q: %w", docPath, ErrRelativePath)
	}
	docDir := filepath.Dir(docPath)
	if root, ok := FindProjectRoot(docDir, cfg.Manifests, cfg.SearchDepth); ok {
		return commandFrom(cfg.WorkspaceCommand, root, true)
	}
	return commandFrom(cfg.FileCommand, docDir, false)
}

func commandFrom(argv []string, dir string, workspace bool) (ServerCommand, error) {
	if len(argv) == 0 {
		return ServerCommand{}, fmt.Errorf("empty server command")
	}
	return ServerCommand{
		Name:      argv[0],
		Args:      append([]string(nil), argv[1:]...),
		Dir:       dir,
		Workspace: workspace,
	}, nil
}
