package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"
)

var (
	ansiRe   = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	serverRe = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1?\]|[A-Za-z0-9.-]+):(\d{2,5})(?:/[^\s]*)?`)
)

// DetectServer finds the first http(s) URL carrying an explicit port in a line
// of process output.
func DetectServer(line string) (int, string, bool) {
	line = ansiRe.ReplaceAllString(line, "")
	m := serverRe.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port > 65535 {
		return 0, "", false
	}
	return port, m[0], true
}

type PreviewConfig struct {
	Install []string
	Dev     []string
}

var DefaultPreview = PreviewConfig{
	Install: []string{"npm", "install"},
	Dev:     []string{"npm", "run", "dev"},
}

// Preview installs dependencies, starts the dev server and waits for the
// runtime to report either server-ready or an error. The dev server keeps
// running after Preview returns; cancel ctx or close the runtime to stop it.
func Preview(ctx context.Context, rt Runtime, cfg PreviewConfig) (Event, error) {
	if len(cfg.Install) > 0 {
		install, err := rt.Spawn(ctx, cfg.Install[0], cfg.Install[1:]...)
		if err != nil {
			return Event{}, err
		}
		go drain(install.Output, "install")

		code, err := install.Wait()
		if err != nil {
			return Event{}, fmt.Errorf("install: %w", err)
		}
		log.Debug().Int("code", code).Msg("install exited")
		if code != 0 {
			return Event{}, fmt.Errorf("install exited with code %d", code)
		}
	}

	if len(cfg.Dev) == 0 {
		return Event{}, fmt.Errorf("no dev command")
	}
	dev, err := rt.Spawn(ctx, cfg.Dev[0], cfg.Dev[1:]...)
	if err != nil {
		return Event{}, err
	}
	go drain(dev.Output, "dev")

	exited := make(chan int, 1)
	go func() {
		code, _ := dev.Wait()
		exited <- code
	}()

	for {
		select {
		case ev := <-rt.Events():
			switch ev.Kind {
			case EventServerReady:
				log.Info().Int("port", ev.Port).Str("url", ev.URL).Msg("server ready")
				return ev, nil
			case EventError:
				return ev, fmt.Errorf("sandbox: %s", ev.Message)
			}
		case code := <-exited:
			return Event{}, fmt.Errorf("dev server exited with code %d", code)
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

func drain(r io.Reader, name string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.Debug().Str("proc", name).Msg(sc.Text())
	}
	_, _ = io.Copy(io.Discard, r)
}
