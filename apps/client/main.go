package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/cyber-nic/scaffold/libs/artifact"
	"github.com/cyber-nic/scaffold/libs/filetree"
	"github.com/cyber-nic/scaffold/libs/mount"
	"github.com/cyber-nic/scaffold/libs/orchestrator"
	"github.com/cyber-nic/scaffold/libs/sandbox"
	"github.com/cyber-nic/scaffold/libs/store"
	sfutils "github.com/cyber-nic/scaffold/libs/utils"
	"github.com/google/uuid"
	"github.com/logrusorgru/aurora/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type settings struct {
	backend string
	apiKey  string
	model   string
	workdir string
	db      string
	debug   bool
}

// application entrypoint
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	s := &settings{}

	root := &cobra.Command{
		Use:   "scaffold",
		Short: "Generate and preview a web project from a prompt",
		Long: `Scaffold asks the backend to pick a project template, generates the
project files from your prompt and writes them to a work directory.
Follow-up messages edit the project in place.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			sfutils.ConfigLogging(&s.debug)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&s.backend, "backend", "http://localhost:8000", "scaffold server URL")
	flags.StringVar(&s.apiKey, "api-key", "", "model provider API key (default $"+apiKeyEnv+" or ~/.secrets/OPENAI_API_KEY)")
	flags.StringVar(&s.model, "model", "", "model name, e.g. gpt-4.1, gemini-2.0-flash or ollama:llama3")
	flags.StringVar(&s.workdir, "workdir", "scaffold-out", "directory the project is written to")
	flags.StringVar(&s.db, "db", defaultDBPath(), "session database")
	flags.BoolVar(&s.debug, "debug", false, "enable debug mode")

	root.AddCommand(newRunCmd(s))
	root.AddCommand(newResumeCmd(s))
	root.AddCommand(newHistoryCmd(s))
	root.AddCommand(newParseCmd())
	return root
}

func (s *settings) newApp(cmd *cobra.Command, st *store.Store, session *orchestrator.Session, id string) *app {
	return &app{
		out:     cmd.OutOrStdout(),
		session: session,
		store:   st,
		sandbox: sandbox.NewHandle(sandbox.BootLocal(s.workdir)),
		workdir: s.workdir,
		id:      id,
		notices: make(chan string, 1),
	}
}

func (s *settings) config() orchestrator.Config {
	return orchestrator.Config{APIKey: resolveAPIKey(s.apiKey), Model: s.model}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newRunCmd(s *settings) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Start a new session",
		Long:  "Start a new session. Without a prompt argument the first line read from stdin is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			st, err := store.Open(s.db)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer st.Close()

			id := uuid.NewString()
			a := s.newApp(cmd, st, orchestrator.New(newHTTPBackend(s.backend, nil), s.config()), id)
			a.preview = preview
			a.spinner = isTerminal(cmd.InOrStdin())
			defer a.close()

			log.Info().Str("session", id).Str("backend", s.backend).Msg("session started")
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", aurora.Faint("session"), id)

			if prompt := strings.TrimSpace(strings.Join(args, " ")); prompt != "" {
				if err := a.turn(ctx, prompt); err != nil {
					return err
				}
			}
			return a.loop(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "run npm install and the dev server after the first generation")
	return cmd
}

func newResumeCmd(s *settings) *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Continue a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			st, err := store.Open(s.db)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer st.Close()

			entry, snap, err := st.Load(ctx, args[0])
			if err != nil {
				return err
			}

			session := orchestrator.Restore(newHTTPBackend(s.backend, nil), s.config(), snap)
			a := s.newApp(cmd, st, session, entry.ID)
			a.prompt = entry.Prompt
			a.started = true
			a.preview = preview
			a.spinner = isTerminal(cmd.InOrStdin())
			defer a.close()

			out := cmd.OutOrStdout()
			for _, m := range session.Chat() {
				fmt.Fprintf(out, "%s %s\n", aurora.Faint(string(m.Role)+":"), m.Content)
			}
			if session.State() == orchestrator.StateComplete {
				a.sync(ctx)
			}
			return a.loop(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "run npm install and the dev server once the project is mounted")
	return cmd
}

func newHistoryCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(s.db)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer st.Close()

			entries, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no sessions")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPHASE\tUPDATED\tPROMPT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Phase, e.UpdatedAt.Format("2006-01-02 15:04"), truncate(e.Prompt, 60))
			}
			return tw.Flush()
		},
	}
}

func newParseCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse artifact markup offline and print the steps and file tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 1 && args[0] != "-" {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			steps := artifact.Parse(string(data))
			tree := filetree.Build(steps)
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(mount.Project(tree))
			}

			if title, ok := artifact.Title(string(data)); ok {
				fmt.Fprintln(out, aurora.Bold(title))
			}
			for _, step := range steps {
				printStep(out, step)
			}
			fmt.Fprintln(out)
			printTree(out, tree, "")
			printWarnings(out, tree, filetree.Diff(nil, tree))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the sandbox mount tree as JSON")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
