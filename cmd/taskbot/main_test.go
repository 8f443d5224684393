package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/tasks/taskstest"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "migrate", "ask", "threads", "tasks", "assistant", "config", "version"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	for _, key := range []string{"TASKS_BASE_URL", "BASE_URL", "THREADS_DSN"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "$DIR", dir)
	path := filepath.Join(dir, "taskbot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("TASKBOT_CONFIG", "")
	t.Chdir(t.TempDir())

	if got := resolveConfigPath(""); got != "" {
		t.Fatalf("missing default file should resolve to env-only, got %q", got)
	}
	if got := resolveConfigPath("custom.yaml"); got != "custom.yaml" {
		t.Fatalf("explicit path = %q", got)
	}
	t.Setenv("TASKBOT_CONFIG", "/etc/taskbot.yaml")
	if got := resolveConfigPath(""); got != "/etc/taskbot.yaml" {
		t.Fatalf("env path = %q", got)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "taskbot dev") {
		t.Fatalf("output = %q", out)
	}
}

func TestConfigCommands(t *testing.T) {
	out, err := execute(t, "config", "schema")
	if err != nil {
		t.Fatalf("config schema: %v", err)
	}
	if !strings.Contains(out, "allowed_chats") {
		t.Fatalf("schema missing fields: %s", out)
	}

	path := writeTestConfig(t, `
version: 1
threads:
  dsn: $DIR/chats.db
logging:
  level: error
  format: text
`)
	out, err = execute(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "configuration is valid") {
		t.Fatalf("output = %q", out)
	}

	t.Setenv("TELEGRAM_TOKEN", "")
	if _, err := execute(t, "--config", path, "config", "validate", "--serve"); err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("expected missing token error, got %v", err)
	}

	bad := writeTestConfig(t, "version: 1\nthreads:\n  driver: mongodb\n")
	if _, err := execute(t, "--config", bad, "config", "validate"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestThreadsCommands(t *testing.T) {
	path := writeTestConfig(t, `
version: 1
threads:
  driver: sqlite
  dsn: $DIR/chats.db
logging:
  level: error
  format: text
`)

	out, err := execute(t, "--config", path, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "thread store ready") {
		t.Fatalf("migrate output = %q", out)
	}

	out, err = execute(t, "--config", path, "threads", "list")
	if err != nil {
		t.Fatalf("threads list: %v", err)
	}
	if strings.TrimSpace(out) != "no threads" {
		t.Fatalf("threads list output = %q", out)
	}

	out, err = execute(t, "--config", path, "threads", "reset", "42")
	if err != nil {
		t.Fatalf("threads reset: %v", err)
	}
	if !strings.Contains(out, "has no thread") {
		t.Fatalf("threads reset output = %q", out)
	}
}

func TestTasksCommands(t *testing.T) {
	srv := taskstest.NewServer()
	defer srv.Close()
	srv.Seed("42", "already done", true)

	path := writeTestConfig(t, `
version: 1
tasks:
  base_url: `+srv.URL+`
threads:
  dsn: $DIR/chats.db
logging:
  level: error
  format: text
`)

	out, err := execute(t, "--config", path, "tasks", "--chat", "42", "create", "--description", "2 litres", "buy", "milk")
	if err != nil {
		t.Fatalf("tasks create: %v", err)
	}
	if !strings.Contains(out, "buy milk") || !strings.Contains(out, "2 litres") {
		t.Fatalf("create output = %q", out)
	}

	out, err = execute(t, "--config", path, "tasks", "--chat", "42", "list")
	if err != nil {
		t.Fatalf("tasks list: %v", err)
	}
	if !strings.Contains(out, "buy milk") || strings.Contains(out, "already done") {
		t.Fatalf("list output = %q", out)
	}

	var id string
	for _, task := range srv.Tasks("42") {
		if task.Title == "buy milk" {
			id = strconv.FormatInt(task.ID, 10)
		}
	}
	if id == "" {
		t.Fatal("created task not stored")
	}

	if _, err := execute(t, "--config", path, "tasks", "--chat", "42", "complete", id); err != nil {
		t.Fatalf("tasks complete: %v", err)
	}
	out, err = execute(t, "--config", path, "tasks", "--chat", "42", "list", "--completed")
	if err != nil {
		t.Fatalf("tasks list --completed: %v", err)
	}
	if !strings.Contains(out, "buy milk") || !strings.Contains(out, "already done") {
		t.Fatalf("completed output = %q", out)
	}

	out, err = execute(t, "--config", path, "tasks", "--chat", "42", "delete", id)
	if err != nil {
		t.Fatalf("tasks delete: %v", err)
	}
	if !strings.Contains(out, "deleted task") {
		t.Fatalf("delete output = %q", out)
	}

	if _, err := execute(t, "--config", path, "tasks", "--chat", "42", "delete", "abc"); err == nil {
		t.Fatal("expected invalid id error")
	}
	if _, err := execute(t, "--config", path, "tasks", "list"); err == nil {
		t.Fatal("expected missing --chat error")
	}
}

func TestOpsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "taskbot_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := httptest.NewServer(newOpsHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "taskbot_test_total 1") {
		t.Fatalf("metrics body = %s", body)
	}
}
