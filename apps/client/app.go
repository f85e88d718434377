package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cyber-nic/scaffold/libs/orchestrator"
	"github.com/cyber-nic/scaffold/libs/sandbox"
	"github.com/cyber-nic/scaffold/libs/store"
	"github.com/logrusorgru/aurora/v4"
	"github.com/rs/zerolog/log"
)

// app drives one interactive session: every turn is persisted, mounted into
// the work directory and optionally previewed.
type app struct {
	out     io.Writer
	session *orchestrator.Session
	store   *store.Store
	sandbox *sandbox.Handle
	workdir string

	id      string
	prompt  string
	started bool

	preview    bool
	previewing bool
	spinner    bool

	// notices carries messages from background work; only loop writes them to out.
	notices    chan string
	runPreview func(context.Context, sandbox.Runtime) (sandbox.Event, error)
}

func defaultPreview(ctx context.Context, rt sandbox.Runtime) (sandbox.Event, error) {
	return sandbox.Preview(ctx, rt, sandbox.DefaultPreview)
}

// turn sends one message and renders the outcome.
func (a *app) turn(ctx context.Context, text string) error {
	var stop chan struct{}
	var spinnerDone chan struct{}
	if a.spinner {
		stop = make(chan struct{})
		spinnerDone = make(chan struct{})
		go func() {
			showSpinner(a.out, stop)
			close(spinnerDone)
		}()
	}

	var (
		reply orchestrator.Reply
		err   error
	)
	if a.started {
		reply, err = a.session.Send(ctx, text)
	} else {
		a.prompt = text
		reply, err = a.session.Start(ctx, text)
		a.started = true
	}

	if a.spinner {
		close(stop)
		<-spinnerDone
	}
	if err != nil {
		return err
	}

	printReply(a.out, reply)
	if reply.Failed {
		log.Debug().Err(reply.Cause).Str("session", a.id).Msg("turn failed")
	} else {
		printWarnings(a.out, a.session.Files(), reply.Changes)
	}

	if err := a.store.Save(ctx, a.id, a.prompt, a.session.Snapshot()); err != nil {
		log.Err(err).Str("session", a.id).Msg("failed to save session")
	}

	if !reply.Failed {
		a.sync(ctx)
	}
	return nil
}

// sync mounts the current tree and starts the preview on first success.
func (a *app) sync(ctx context.Context) {
	rt, err := a.sandbox.Get(ctx)
	if err != nil {
		log.Err(err).Msg("sandbox boot failed")
		return
	}
	if err := rt.Mount(ctx, a.session.Mount()); err != nil {
		log.Err(err).Msg("mount failed")
		return
	}
	fmt.Fprintf(a.out, "%s %s\n", aurora.Faint("files written to"), a.workdir)

	if !a.preview || a.previewing {
		return
	}
	a.previewing = true
	run := a.runPreview
	if run == nil {
		run = defaultPreview
	}
	go func() {
		ev, err := run(ctx, rt)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Err(err).Msg("preview failed")
			}
			return
		}
		select {
		case a.notices <- fmt.Sprintf("%s %s", aurora.Bold(aurora.Cyan("preview ready at")), ev.URL):
		case <-ctx.Done():
		}
	}()
}

// loop reads one message per line until EOF, "/quit" or cancellation.
func (a *app) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		textPrompt(a.out)
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return nil
		case msg := <-a.notices:
			fmt.Fprintf(a.out, "\n%s\n", msg)
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(a.out)
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit", "/exit":
				return nil
			case "/files":
				printTree(a.out, a.session.Files(), "")
				continue
			case "/steps":
				for _, s := range a.session.Steps() {
					printStep(a.out, s)
				}
				continue
			}

			if err := a.turn(ctx, line); err != nil {
				if errors.Is(err, orchestrator.ErrBusy) || errors.Is(err, orchestrator.ErrEmptyMessage) {
					fmt.Fprintln(a.out, aurora.Yellow(err.Error()))
					continue
				}
				return err
			}
		}
	}
}

func (a *app) close() {
	if err := a.sandbox.Close(); err != nil {
		log.Err(err).Msg("sandbox close")
	}
}
