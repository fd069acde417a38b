package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abiosoft/ishell/v2"
	"github.com/spf13/cobra"

	"github.com/funcdeck/funcdeck"
	"github.com/funcdeck/funcdeck/client"
	"github.com/funcdeck/funcdeck/config"
)

// NewConsoleCmd creates the "console" subcommand, an interactive shell over
// the workspace: draft editing, saving, and tracked runs.
func NewConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open an interactive function console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			registry, invocations, err := newClients(settings)
			if err != nil {
				return err
			}

			session, err := newConsoleSession(cmd.Context(), settings, registry, invocations)
			if err != nil {
				return err
			}
			session.shell.Run()
			session.tracker.Reset()
			return nil
		},
	}
}

// consoleSession holds the state shared by all console commands.
type consoleSession struct {
	ctx       context.Context
	shell     *ishell.Shell
	workspace *funcdeck.Workspace
	registry  *client.Registry
	tracker   *funcdeck.Tracker
}

func newConsoleSession(ctx context.Context, settings config.Settings, registry *client.Registry, invocations *client.Invocations) (*consoleSession, error) {
	tracker, err := funcdeck.NewTracker(funcdeck.TrackerConfig{
		Service:      invocations,
		PollInterval: settings.PollInterval,
		RunTimeout:   settings.RunTimeout,
		MaxAttempts:  settings.MaxAttempts,
		MaxRepeats:   settings.MaxRepeats,
		PollRetries:  settings.PollRetries,
	})
	if err != nil {
		return nil, exitError(exitRuntime, "configuring tracker: %v", err)
	}

	session := &consoleSession{
		ctx:       ctx,
		shell:     ishell.New(),
		workspace: funcdeck.NewWorkspace(registry),
		registry:  registry,
		tracker:   tracker,
	}

	if err := session.reload(); err != nil {
		return nil, exitError(exitRuntime, "%v", err)
	}

	session.shell.Println("funcdeck console. Type 'help' for commands.")
	session.shell.SetPrompt("funcdeck> ")
	session.register()
	return session, nil
}

// reload refreshes the workspace from the registry, keeping local drafts.
func (s *consoleSession) reload() error {
	list, err := s.registry.ListFunctions(s.ctx)
	if err != nil {
		return err
	}
	fns := make([]funcdeck.FunctionDefinition, 0, len(list))
	for _, summary := range list {
		fns = append(fns, funcdeck.FunctionDefinition{
			ID:          summary.ID,
			Name:        summary.Name,
			Runtime:     summary.Runtime,
			Description: summary.Description,
			CreatedAt:   summary.CreatedAt,
		})
	}
	s.workspace.Load(fns)
	return nil
}

func (s *consoleSession) register() {
	s.shell.AddCmd(&ishell.Cmd{
		Name: "list",
		Help: "list workspace functions (drafts included)",
		Func: s.cmdList,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "select",
		Help: "select <id> — make a function current",
		Func: s.cmdSelect,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "new",
		Help: "new <name> [runtime] — start a draft function",
		Func: s.cmdNew,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "edit",
		Help: "edit the selected draft's source (end with a single '.')",
		Func: s.cmdEdit,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "lang",
		Help: "lang <runtime> — switch the selected draft's runtime",
		Func: s.cmdLang,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "save",
		Help: "persist the selected draft to the registry",
		Func: s.cmdSave,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "run",
		Help: "run [json] — invoke the selected function and track it",
		Func: s.cmdRun,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "reset",
		Help: "cancel the in-flight run",
		Func: s.cmdReset,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "show",
		Help: "show the selected function's source",
		Func: s.cmdShow,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "delete",
		Help: "delete <id> — remove a function or discard a draft",
		Func: s.cmdDelete,
	})
	s.shell.AddCmd(&ishell.Cmd{
		Name: "reload",
		Help: "refresh the function list from the registry",
		Func: func(c *ishell.Context) {
			if err := s.reload(); err != nil {
				c.Err(err)
				return
			}
			c.Println("reloaded")
		},
	})
}

func (s *consoleSession) cmdList(c *ishell.Context) {
	selected, hasSelection := s.workspace.Selected()
	for _, fn := range s.workspace.Functions() {
		marker := "  "
		if hasSelection && fn.ID == selected.ID {
			marker = "* "
		}
		label := ""
		if fn.ID.IsDraft() {
			label = dimText(" (draft)")
		}
		c.Printf("%s%s  %s  %s%s\n", marker, fn.ID, fn.Name, fn.Runtime, label)
	}
}

func (s *consoleSession) cmdSelect(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("usage: select <id>"))
		return
	}
	var id int64
	if _, err := fmt.Sscanf(c.Args[0], "%d", &id); err != nil {
		c.Err(fmt.Errorf("invalid id %q", c.Args[0]))
		return
	}
	if err := s.workspace.Select(funcdeck.FunctionID(id)); err != nil {
		c.Err(err)
		return
	}
	fn, _ := s.workspace.Selected()
	c.Printf("selected %s (%s)\n", fn.Name, fn.ID)
}

func (s *consoleSession) cmdNew(c *ishell.Context) {
	if len(c.Args) < 1 || len(c.Args) > 2 {
		c.Err(fmt.Errorf("usage: new <name> [runtime]"))
		return
	}
	runtime := funcdeck.RuntimeGo
	if len(c.Args) == 2 {
		parsed, err := funcdeck.ParseRuntimeTag(c.Args[1])
		if err != nil {
			c.Err(err)
			return
		}
		runtime = parsed
	}
	draft, err := s.workspace.NewDraft(c.Args[0], runtime)
	if err != nil {
		c.Err(err)
		return
	}
	c.Printf("draft %s created and selected (%s)\n", draft.ID, draft.Runtime)
}

func (s *consoleSession) cmdEdit(c *ishell.Context) {
	fn, ok := s.workspace.Selected()
	if !ok {
		c.Err(funcdeck.ErrNoSelection)
		return
	}
	c.Println("Enter source, end with a single '.' on its own line:")
	source := c.ReadMultiLines(".")
	if err := s.workspace.SetDraftSource(fn.ID, source); err != nil {
		c.Err(err)
		return
	}
	c.Println("source updated")
}

func (s *consoleSession) cmdLang(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("usage: lang <runtime>"))
		return
	}
	fn, ok := s.workspace.Selected()
	if !ok {
		c.Err(funcdeck.ErrNoSelection)
		return
	}
	runtime, err := funcdeck.ParseRuntimeTag(c.Args[0])
	if err != nil {
		c.Err(err)
		return
	}
	if err := s.workspace.SetDraftRuntime(fn.ID, runtime); err != nil {
		c.Err(err)
		return
	}
	c.Printf("runtime set to %s\n", runtime)
}

func (s *consoleSession) cmdSave(c *ishell.Context) {
	fn, ok := s.workspace.Selected()
	if !ok {
		c.Err(funcdeck.ErrNoSelection)
		return
	}
	saved, err := s.workspace.SaveDraft(s.ctx, fn.ID)
	if err != nil {
		c.Err(err)
		return
	}
	c.Printf("saved as %s (id %s)\n", saved.Name, saved.ID)
}

func (s *consoleSession) cmdRun(c *ishell.Context) {
	fn, ok := s.workspace.Selected()
	if !ok {
		c.Err(funcdeck.ErrNoSelection)
		return
	}

	input := json.RawMessage(`{}`)
	if len(c.Args) > 0 {
		joined := strings.Join(c.Args, " ")
		if !json.Valid([]byte(joined)) {
			c.Err(funcdeck.ErrInvalidPayload)
			return
		}
		input = json.RawMessage(joined)
	} else if len(fn.SampleEvent) > 0 {
		input = fn.SampleEvent
	}

	handle, err := s.tracker.Submit(s.ctx, fn, input)
	if err != nil {
		c.Err(err)
		return
	}

	c.ProgressBar().Indeterminate(true)
	c.ProgressBar().Start()
	start := time.Now()
	<-handle.Done()
	c.ProgressBar().Stop()

	state := handle.Snapshot()
	c.Printf("%s in %s\n", colorStatus(state.Status), time.Since(start).Round(time.Millisecond))
	if state.Status == funcdeck.StatusSuccess {
		c.Println(formatJSON(state.Result))
		return
	}
	if state.ErrorMessage != "" {
		c.Println(failText(state.ErrorMessage))
	}
}

func (s *consoleSession) cmdReset(c *ishell.Context) {
	s.tracker.Reset()
	c.Println("run cancelled")
}

func (s *consoleSession) cmdShow(c *ishell.Context) {
	fn, ok := s.workspace.Selected()
	if !ok {
		c.Err(funcdeck.ErrNoSelection)
		return
	}
	c.Printf("%s (%s, %s)\n\n%s\n", fn.Name, fn.ID, fn.Runtime, fn.SourceCode)
}

func (s *consoleSession) cmdDelete(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("usage: delete <id>"))
		return
	}
	var id int64
	if _, err := fmt.Sscanf(c.Args[0], "%d", &id); err != nil {
		c.Err(fmt.Errorf("invalid id %q", c.Args[0]))
		return
	}
	fnID := funcdeck.FunctionID(id)

	if fnID.IsServer() {
		if err := s.registry.DeleteFunction(s.ctx, fnID); err != nil {
			c.Err(err)
			return
		}
	}
	if err := s.workspace.Remove(fnID); err != nil {
		c.Err(err)
		return
	}
	c.Printf("removed %s\n", fnID)
}
