package session

import (
	"fmt"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bollu/elide-sub000/internal/config"
	"github.com/bollu/elide-sub000/internal/lean"
)

// Launch starts a language server for path, completes the handshake and
// opens the document. The session owns the server from then on.
func Launch(path string, cfg config.Config, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	sc, err := lean.SelectServer(abs, cfg.Server)
	if err != nil {
		return nil, err
	}
	root, err := lean.FileURI(sc.Dir)
	if err != nil {
		return nil, err
	}
	proc, err := lean.StartSubprocess(sc, log)
	if err != nil {
		return nil, err
	}
	eng := lean.NewEngine(proc, lean.WithLogger(log.With(zap.Int("pid", proc.Pid()))))
	if _, err := eng.Initialize(root, cfg.Server.HandshakeRetries, cfg.Server.HandshakeInterval.Duration); err != nil {
		return nil, multierr.Append(err, eng.Close())
	}
	s, err := Open(abs, eng, WithConfig(cfg), WithLogger(log))
	if err != nil {
		return nil, multierr.Append(err, eng.Close())
	}
	return s, nil
}
