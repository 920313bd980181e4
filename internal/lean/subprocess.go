package lean

// subprocess.go: the language server child process and its three pipes.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	readChunk  = 64 * 1024
	closeGrace = 2 * time.Second
)

// Subprocess owns one child process. The parent holds the write end of
// the child's stdin and non-blocking read ends of its stdout and stderr.
type Subprocess struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	stdoutConn syscall.RawConn
	stderrConn syscall.RawConn

	buf []byte
	log *zap.Logger
}

// StartSubprocess forks sc with fresh pipes for all three std streams.
func StartSubprocess(sc ServerCommand, log *zap.Logger) (*Subprocess, error) {
	if log == nil {
		log = zap.NewNop()
	}

	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("stdout pipe: %w", err), inR.Close(), inW.Close())
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("stderr pipe: %w", err),
			inR.Close(), inW.Close(), outR.Close(), outW.Close())
	}

	cmd := exec.Command(sc.Name, sc.Args...)
	cmd.Dir = sc.Dir
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		return nil, multierr.Combine(fmt.Errorf("start %s: %w", sc.Name, err),
			inR.Close(), inW.Close(), outR.Close(), outW.Close(), errR.Close(), errW.Close())
	}

	// The child has its own copies of these ends.
	if err := multierr.Combine(inR.Close(), outW.Close(), errW.Close()); err != nil {
		log.Warn("closing child pipe ends", zap.Error(err))
	}

	s := &Subprocess{
		cmd:    cmd,
		stdin:  inW,
		stdout: outR,
		stderr: errR,
		buf:    make([]byte, readChunk),
		log:    log,
	}
	if s.stdoutConn, err = nonblockingConn(outR); err != nil {
		return nil, multierr.Append(fmt.Errorf("stdout nonblock: %w", err), s.Close())
	}
	if s.stderrConn, err = nonblockingConn(errR); err != nil {
		return nil, multierr.Append(fmt.Errorf("stderr nonblock: %w", err), s.Close())
	}

	log.Info("language server started",
		zap.String("cmd", sc.Name), zap.Strings("args", sc.Args),
		zap.String("dir", sc.Dir), zap.Int("pid", cmd.Process.Pid))
	return s, nil
}

func nonblockingConn(f *os.File) (syscall.RawConn, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return nil, err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetNonblock(int(fd), true)
	}); err != nil {
		return nil, err
	}
	return rc, serr
}

// Pid returns the child's process id.
func (s *Subprocess) Pid() int {
	return s.cmd.Process.Pid
}

// Write writes p to the child's stdin, blocking until the pipe accepts it.
func (s *Subprocess) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// ReadAvailable returns whatever the child has written to stdout so far.
// It never blocks: an empty result with a nil error means no data yet.
// io.EOF means the child closed stdout.
func (s *Subprocess) ReadAvailable() ([]byte, error) {
	return s.readAvailable(s.stdoutConn)
}

// DrainStderr is ReadAvailable for stderr.
func (s *Subprocess) DrainStderr() ([]byte, error) {
	return s.readAvailable(s.stderrConn)
}

func (s *Subprocess) readAvailable(rc syscall.RawConn) ([]byte, error) {
	var out []byte
	for {
		var n int
		var rerr error
		err := rc.Read(func(fd uintptr) bool {
			n, rerr = unix.Read(int(fd), s.buf)
			// Never park in the poller; EAGAIN is reported to the caller.
			return true
		})
		switch {
		case err != nil:
			return out, err
		case errors.Is(rerr, unix.EAGAIN):
			return out, nil
		case errors.Is(rerr, unix.EINTR):
			continue
		case rerr != nil:
			return out, rerr
		case n == 0:
			return out, io.EOF
		}
		out = append(out, s.buf[:n]...)
	}
}

// Close closes stdin so the child can exit on its own, kills it after a
// grace period, and releases the parent's pipe ends.
func (s *Subprocess) Close() error {
	err := s.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()
	select {
	case werr := <-done:
		if werr != nil {
			s.log.Debug("language server exit", zap.Error(werr))
		}
	case <-time.After(closeGrace):
		s.log.Warn("language server did not exit, killing", zap.Int("pid", s.Pid()))
		err = multierr.Append(err, s.cmd.Process.Kill())
		<-done
	}

	return multierr.Combine(err, s.stdout.Close(), s.stderr.Close())
}
