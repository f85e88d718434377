package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creack/pty"
	"github.com/cyber-nic/scaffold/libs/mount"
	"github.com/rs/zerolog/log"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnore lists paths that survive a remount even though the tree
// does not contain them.
var DefaultIgnore = []string{
	"node_modules/",
	"dist/",
	".vite/",
	"package-lock.json",
}

// Local is a Runtime backed by a directory on the host. Commands run under a
// pseudo-terminal so dev servers keep their interactive output.
type Local struct {
	dir    string
	events chan Event

	mu     sync.Mutex
	procs  map[*exec.Cmd]struct{}
	closed bool
}

// NewLocal creates dir if needed and returns a runtime rooted there.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox dir: %w", err)
	}
	return &Local{
		dir:    abs,
		events: make(chan Event, 16),
		procs:  map[*exec.Cmd]struct{}{},
	}, nil
}

// BootLocal returns a BootFunc for a Handle.
func BootLocal(dir string) BootFunc {
	return func(ctx context.Context) (Runtime, error) {
		return NewLocal(dir)
	}
}

func (l *Local) Dir() string { return l.dir }

func (l *Local) Events() <-chan Event { return l.events }

// Mount writes tree into the runtime directory. Files no longer in the tree
// are removed unless they match DefaultIgnore or the mounted .gitignore.
// Unchanged files are not rewritten.
func (l *Local) Mount(ctx context.Context, tree mount.Tree) error {
	files := tree.Files()
	for rel := range files {
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return fmt.Errorf("mount path escapes sandbox: %q", rel)
		}
	}

	if err := l.prune(ctx, files); err != nil {
		return err
	}

	for _, rel := range tree.Dirs() {
		if err := os.MkdirAll(filepath.Join(l.dir, filepath.FromSlash(rel)), 0o755); err != nil {
			return err
		}
	}

	written := 0
	for rel, contents := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(l.dir, filepath.FromSlash(rel))
		if cur, err := os.ReadFile(p); err == nil && bytes.Equal(cur, []byte(contents)) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
			return err
		}
		written++
	}

	log.Debug().Str("dir", l.dir).Int("files", len(files)).Int("written", written).Msg("mounted")
	return nil
}

func (l *Local) prune(ctx context.Context, keep map[string]string) error {
	rules := append([]string{}, DefaultIgnore...)
	if gi, ok := keep[".gitignore"]; ok {
		rules = append(rules, strings.Split(gi, "\n")...)
	}
	matcher := ignore.CompileIgnoreLines(rules...)

	return filepath.WalkDir(l.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == l.dir {
			return nil
		}
		rel, err := filepath.Rel(l.dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := keep[rel]; ok || matcher.MatchesPath(rel) {
			return nil
		}
		log.Trace().Str("path", rel).Msg("prune")
		return os.Remove(p)
	})
}

// Spawn starts name under a pty in the runtime directory. The first
// http(s) URL with a port printed by the process is emitted as a
// server-ready event.
func (l *Local) Spawn(ctx context.Context, name string, args ...string) (*Process, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.mu.Unlock()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = l.dir
	cmd.Env = append(os.Environ(), "BROWSER=none", "FORCE_COLOR=0")

	f, err := pty.Start(cmd)
	if err != nil {
		l.emit(Event{Kind: EventError, Message: fmt.Sprintf("spawn %s: %v", name, err)})
		return nil, fmt.Errorf("spawn %s: %w", name, err)
	}

	l.mu.Lock()
	l.procs[cmd] = struct{}{}
	l.mu.Unlock()

	pr, pw := io.Pipe()
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		l.scan(f, pw)
	}()

	wait := func() (int, error) {
		err := cmd.Wait()
		<-copied
		f.Close()

		l.mu.Lock()
		delete(l.procs, cmd)
		l.mu.Unlock()

		code := cmd.ProcessState.ExitCode()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = nil
		}
		return code, err
	}

	log.Debug().Str("cmd", name).Strs("args", args).Int("pid", cmd.Process.Pid).Msg("spawned")
	return &Process{Output: pr, wait: sync.OnceValues(wait)}, nil
}

// scan copies process output to w line by line, watching for a dev server URL.
func (l *Local) scan(r io.Reader, w *io.PipeWriter) {
	announced := false
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !announced {
			if port, url, ok := DetectServer(line); ok {
				announced = true
				l.emit(Event{Kind: EventServerReady, Port: port, URL: url})
			}
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			// reader went away; keep the pty drained so the child never blocks
			_, _ = io.Copy(io.Discard, r)
			break
		}
	}
	// a pty master returns EIO once the child side closes
	w.Close()
}

func (l *Local) emit(ev Event) {
	select {
	case l.events <- ev:
	default:
		log.Warn().Str("kind", string(ev.Kind)).Msg("sandbox event dropped")
	}
}

// Close kills any running process. The directory is left in place.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	for cmd := range l.procs {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	return nil
}
