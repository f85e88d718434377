package sandbox

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyber-nic/scaffold/libs/mount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectServer(t *testing.T) {
	tests := []struct {
		name string
		line string
		port int
		url  string
		ok   bool
	}{
		{"vite", "  ➜  Local:   http://localhost:5173/", 5173, "http://localhost:5173/", true},
		{"ansi", "\x1b[32mhttp://localhost:\x1b[1m5173\x1b[22m/\x1b[39m", 5173, "http://localhost:5173/", true},
		{"express", "Server running at http://127.0.0.1:3000", 3000, "http://127.0.0.1:3000", true},
		{"no port", "see https://github.com/npm/cli for details", 0, "", false},
		{"no url", "added 120 packages in 3s", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, url, ok := DetectServer(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.port, port)
			assert.Equal(t, tt.url, url)
		})
	}
}

func file(s string) mount.Node {
	return mount.Node{File: &mount.FileContents{Contents: s}}
}

func dir(t mount.Tree) mount.Node {
	return mount.Node{Directory: t}
}

func write(t *testing.T, root, rel, contents string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
}

func TestLocalMount(t *testing.T) {
	root := t.TempDir()
	write(t, root, "old.txt", "stale")
	write(t, root, "node_modules/react/index.js", "module")
	write(t, root, "debug.log", "log")

	rt, err := NewLocal(root)
	require.NoError(t, err)

	tree := mount.Tree{
		".gitignore": file("*.log\n"),
		"index.html": file("<html></html>"),
		"src":        dir(mount.Tree{"main.jsx": file("render()")}),
	}
	require.NoError(t, rt.Mount(context.Background(), tree))

	got, err := os.ReadFile(filepath.Join(root, "src", "main.jsx"))
	require.NoError(t, err)
	assert.Equal(t, "render()", string(got))

	assert.NoFileExists(t, filepath.Join(root, "old.txt"))
	assert.FileExists(t, filepath.Join(root, "node_modules", "react", "index.js"))
	assert.FileExists(t, filepath.Join(root, "debug.log"))

	delete(tree["src"].Directory, "main.jsx")
	require.NoError(t, rt.Mount(context.Background(), tree))
	assert.NoFileExists(t, filepath.Join(root, "src", "main.jsx"))
	assert.FileExists(t, filepath.Join(root, "index.html"))
}

func TestLocalMountRejectsEscape(t *testing.T) {
	rt, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	err = rt.Mount(context.Background(), mount.Tree{
		"..": dir(mount.Tree{"evil.txt": file("x")}),
	})
	assert.Error(t, err)
}

func TestLocalSpawn(t *testing.T) {
	rt, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	defer rt.Close()

	p, err := rt.Spawn(context.Background(), "sh", "-c", "echo listening on http://localhost:4321/")
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}

	out, err := io.ReadAll(p.Output)
	require.NoError(t, err)
	assert.Contains(t, string(out), "http://localhost:4321/")

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	select {
	case ev := <-rt.Events():
		assert.Equal(t, EventServerReady, ev.Kind)
		assert.Equal(t, 4321, ev.Port)
	case <-time.After(time.Second):
		t.Fatal("no server-ready event")
	}
}

func TestHandleBootsOnce(t *testing.T) {
	var boots atomic.Int32
	gate := make(chan struct{})
	want := newFake(nil)

	h := NewHandle(func(ctx context.Context) (Runtime, error) {
		boots.Add(1)
		<-gate
		return want, nil
	})
	assert.Equal(t, NotStarted, h.State())

	var wg sync.WaitGroup
	got := make([]Runtime, 5)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rt, err := h.Get(context.Background())
			assert.NoError(t, err)
			got[i] = rt
		}(i)
	}

	require.Eventually(t, func() bool { return h.State() == Booting }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), boots.Load())
	assert.Equal(t, Ready, h.State())
	for _, rt := range got {
		assert.Same(t, want, rt)
	}

	require.NoError(t, h.Close())
	assert.True(t, want.closed)
	_, err := h.Get(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHandleBootFailure(t *testing.T) {
	calls := 0
	h := NewHandle(func(ctx context.Context) (Runtime, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("no space")
		}
		return newFake(nil), nil
	})

	_, err := h.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, NotStarted, h.State())

	rt, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rt)
	assert.Equal(t, Ready, h.State())
}

type fakeRuntime struct {
	mu      sync.Mutex
	spawned []string
	events  chan Event
	onSpawn func(cmd string) (int, []Event)
	stop    chan struct{}
	closed  bool
}

func newFake(onSpawn func(cmd string) (int, []Event)) *fakeRuntime {
	return &fakeRuntime{events: make(chan Event, 4), onSpawn: onSpawn, stop: make(chan struct{})}
}

func (f *fakeRuntime) Mount(ctx context.Context, tree mount.Tree) error { return nil }

func (f *fakeRuntime) Spawn(ctx context.Context, name string, args ...string) (*Process, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.spawned = append(f.spawned, cmd)
	f.mu.Unlock()

	code, evs := f.onSpawn(cmd)
	for _, ev := range evs {
		f.events <- ev
	}
	wait := func() (int, error) { return code, nil }
	if len(evs) > 0 {
		// a process that reported something keeps running until Close
		wait = func() (int, error) {
			<-f.stop
			return code, nil
		}
	}
	return &Process{Output: strings.NewReader(cmd + "\n"), wait: wait}, nil
}

func (f *fakeRuntime) Events() <-chan Event { return f.events }

func (f *fakeRuntime) Close() error {
	if !f.closed && f.stop != nil {
		close(f.stop)
	}
	f.closed = true
	return nil
}

func TestPreview(t *testing.T) {
	rt := newFake(func(cmd string) (int, []Event) {
		if cmd == "npm run dev" {
			return 0, []Event{{Kind: EventServerReady, Port: 5173, URL: "http://localhost:5173/"}}
		}
		return 0, nil
	})
	defer rt.Close()

	ev, err := Preview(context.Background(), rt, DefaultPreview)
	require.NoError(t, err)
	assert.Equal(t, 5173, ev.Port)
	assert.Equal(t, []string{"npm install", "npm run dev"}, rt.spawned)
}

func TestPreviewFailures(t *testing.T) {
	tests := []struct {
		name    string
		onSpawn func(cmd string) (int, []Event)
		spawned []string
	}{
		{
			name: "install fails",
			onSpawn: func(cmd string) (int, []Event) {
				return 1, nil
			},
			spawned: []string{"npm install"},
		},
		{
			name: "runtime error",
			onSpawn: func(cmd string) (int, []Event) {
				if cmd == "npm run dev" {
					return 0, []Event{{Kind: EventError, Message: "boom"}}
				}
				return 0, nil
			},
			spawned: []string{"npm install", "npm run dev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFake(tt.onSpawn)
			defer rt.Close()
			_, err := Preview(context.Background(), rt, DefaultPreview)
			assert.Error(t, err)
			assert.Equal(t, tt.spawned, rt.spawned)
		})
	}
}
