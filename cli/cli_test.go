package cli

import (
	"bytes"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/funcdeck/funcdeck/server"
)

// newTestRoot creates a fresh cobra root command wired to all subcommands.
// Each test gets an isolated command tree to avoid shared state.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "funcdeck",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Path to funcdeck.yaml")
	root.PersistentFlags().String("server", "", "Backend base URL (overrides config)")
	root.AddCommand(NewFnCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewServeCmd())
	return root
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// newTestBackend starts an in-memory development backend and writes a config
// file pointing at it with fast tracker settings.
func newTestBackend(t *testing.T, execDelay time.Duration) (string, string) {
	t.Helper()
	srv := server.NewServer(server.Config{
		Executor: server.EchoExecutor{Delay: execDelay},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Drain()
	})

	configPath := filepath.Join(t.TempDir(), "funcdeck.yaml")
	content := fmt.Sprintf(`server:
  url: %s
tracker:
  poll_interval: 5ms
  run_timeout: 3s
`, ts.URL)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return ts.URL, configPath
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return exitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error %v is not an ExitError", err)
	}
	return exitErr.Code
}

func TestFnListEmpty(t *testing.T) {
	_, configPath := newTestBackend(t, 0)

	stdout, _, err := executeCommand(newTestRoot(), "--config", configPath, "fn", "list")
	if err != nil {
		t.Fatalf("fn list: %v", err)
	}
	if !strings.Contains(stdout, "No functions registered.") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestFnCreateAndList(t *testing.T) {
	_, configPath := newTestBackend(t, 0)

	stdout, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "fn", "create", "greeter", "--runtime", "node", "--description", "says hi")
	if err != nil {
		t.Fatalf("fn create: %v", err)
	}
	if !strings.Contains(stdout, "Created function greeter") {
		t.Fatalf("stdout = %q", stdout)
	}

	stdout, _, err = executeCommand(newTestRoot(), "--config", configPath, "fn", "list")
	if err != nil {
		t.Fatalf("fn list: %v", err)
	}
	if !strings.Contains(stdout, "greeter") || !strings.Contains(stdout, "node") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestFnCreateRejectsUnknownRuntime(t *testing.T) {
	_, configPath := newTestBackend(t, 0)

	_, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "fn", "create", "x", "--runtime", "cobol")
	if code := exitCodeOf(t, err); code != exitValidation {
		t.Fatalf("exit code = %d, want %d", code, exitValidation)
	}
}

func TestFnGetByName(t *testing.T) {
	_, configPath := newTestBackend(t, 0)

	if _, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "fn", "create", "greeter"); err != nil {
		t.Fatalf("fn create: %v", err)
	}

	stdout, _, err := executeCommand(newTestRoot(), "--config", configPath, "fn", "get", "greeter")
	if err != nil {
		t.Fatalf("fn get: %v", err)
	}
	if !strings.Contains(stdout, "greeter (id 1, runtime go)") {
		t.Fatalf("stdout = %q", stdout)
	}

	_, _, err = executeCommand(newTestRoot(), "--config", configPath, "fn", "get", "nosuch")
	if code := exitCodeOf(t, err); code != exitValidation {
		t.Fatalf("exit code = %d, want %d", code, exitValidation)
	}
}

func TestFnDelete(t *testing.T) {
	_, configPath := newTestBackend(t, 0)

	if _, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "fn", "create", "doomed"); err != nil {
		t.Fatalf("fn create: %v", err)
	}
	stdout, _, err := executeCommand(newTestRoot(), "--config", configPath, "fn", "delete", "1")
	if err != nil {
		t.Fatalf("fn delete: %v", err)
	}
	if !strings.Contains(stdout, "Deleted function 1") {
		t.Fatalf("stdout = %q", stdout)
	}

	_, _, err = executeCommand(newTestRoot(), "--config", configPath, "fn", "delete", "1")
	if code := exitCodeOf(t, err); code != exitRuntime {
		t.Fatalf("exit code = %d, want %d", code, exitRuntime)
	}
}

func TestRunTracksToSuccess(t *testing.T) {
	_, configPath := newTestBackend(t, 10*time.Millisecond)

	if _, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "fn", "create", "echoer"); err != nil {
		t.Fatalf("fn create: %v", err)
	}

	stdout, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "run", "echoer", "--input", `{"n":7}`, "--no-spinner")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout, "success") {
		t.Fatalf("stdout = %q, want success", stdout)
	}
	if !strings.Contains(stdout, `"n":7`) && !strings.Contains(stdout, `"n": 7`) {
		t.Fatalf("stdout = %q, want echoed input", stdout)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	_, configPath := newTestBackend(t, 0)

	if _, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "fn", "create", "echoer"); err != nil {
		t.Fatalf("fn create: %v", err)
	}

	_, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "run", "echoer", "--input", "{broken", "--no-spinner")
	if code := exitCodeOf(t, err); code != exitInputParse {
		t.Fatalf("exit code = %d, want %d", code, exitInputParse)
	}
}

func TestRunMissingInputFile(t *testing.T) {
	_, configPath := newTestBackend(t, 0)

	if _, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "fn", "create", "echoer"); err != nil {
		t.Fatalf("fn create: %v", err)
	}

	_, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "run", "echoer", "--input-file", "/nonexistent.json", "--no-spinner")
	if code := exitCodeOf(t, err); code != exitFileNotFound {
		t.Fatalf("exit code = %d, want %d", code, exitFileNotFound)
	}
}

func TestHistoryListsRuns(t *testing.T) {
	_, configPath := newTestBackend(t, 0)

	if _, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "fn", "create", "echoer"); err != nil {
		t.Fatalf("fn create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, _, err := executeCommand(newTestRoot(),
			"--config", configPath, "run", "echoer", "--no-spinner"); err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	stdout, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "history", "echoer", "--limit", "10")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(stdout, "success") {
		t.Fatalf("stdout = %q", stdout)
	}

	_, _, err = executeCommand(newTestRoot(),
		"--config", configPath, "history", "echoer", "--limit", "0")
	if code := exitCodeOf(t, err); code != exitValidation {
		t.Fatalf("exit code = %d, want %d", code, exitValidation)
	}
}

func TestServerFlagOverridesConfig(t *testing.T) {
	serverURL, _ := newTestBackend(t, 0)
	// Config points nowhere; the flag wins.
	configPath := filepath.Join(t.TempDir(), "funcdeck.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  url: http://127.0.0.1:1\n  timeout: 200ms\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	stdout, _, err := executeCommand(newTestRoot(),
		"--config", configPath, "--server", serverURL, "fn", "list")
	if err != nil {
		t.Fatalf("fn list: %v", err)
	}
	if !strings.Contains(stdout, "No functions registered.") {
		t.Fatalf("stdout = %q", stdout)
	}
}
