package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runbox/internal/config"
	"runbox/internal/jsvm"
	"runbox/internal/runner"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// testEnv writes a config pointing storage into a temp dir and returns its path.
func testEnv(t *testing.T) string {
	t.Helper()
	config.Reset()
	t.Cleanup(config.Reset)

	dir := t.TempDir()
	t.Setenv(config.HomeEnv, dir)
	path := filepath.Join(dir, "config.yaml")
	content := "log:\n  level: error\nstorage:\n  path: " + filepath.Join(dir, "data.db") + "\nrunner:\n  timeout: 5s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, configPath, stdin string, args ...string) cliResult {
	t.Helper()

	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", configPath}, args...))

	err := root.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	res := execute(t, testEnv(t), "", "version", "--json")
	require.NoError(t, res.err)

	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestRunCmd(t *testing.T) {
	cfg := testEnv(t)
	file := writeFile(t, "ex.ts", `interface P { n: number }
const p: P = { n: 3 };
console.log(p.n * 2);
console.warn('careful');
`)

	res := execute(t, cfg, "", "run", file)
	require.NoError(t, res.err)
	assert.Equal(t, "6\n[WARN] careful\n", res.stdout)
}

func TestRunCmdStdinJSON(t *testing.T) {
	res := execute(t, testEnv(t), `console.log("from stdin")`, "run", "-", "--json")
	require.NoError(t, res.err)

	var got jsvm.RunResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
	assert.Equal(t, []string{"from stdin"}, got.Output)
	assert.Nil(t, got.Error)
}

func TestRunCmdScriptError(t *testing.T) {
	file := writeFile(t, "bad.ts", `console.log('start'); throw new Error('boom');`)

	res := execute(t, testEnv(t), "", "run", file)
	require.ErrorIs(t, res.err, ErrRunFailed)
	assert.Equal(t, "start\n", res.stdout)
	assert.Equal(t, "Error: boom\n", res.stderr)
}

func TestRunCmdUnsupportedModule(t *testing.T) {
	file := writeFile(t, "api.ts", `console.log('never')`)

	res := execute(t, testEnv(t), "", "run", file, "--module", "module-2-llm-api", "--json")
	require.NoError(t, res.err)

	var got jsvm.RunResult
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
	assert.Equal(t, []string{runner.DefaultAdvisory}, got.Output)
}

func TestRunCmdUnsupportedModulePlain(t *testing.T) {
	file := writeFile(t, "api.ts", `console.log('never')`)

	res := execute(t, testEnv(t), "", "run", file, "--module", "module-2-llm-api")
	require.NoError(t, res.err)
	assert.Equal(t, runner.DefaultAdvisory+"\n", res.stdout)
}

func TestRunCmdMissingFile(t *testing.T) {
	res := execute(t, testEnv(t), "", "run", filepath.Join(t.TempDir(), "nope.ts"))
	require.Error(t, res.err)
	assert.NotErrorIs(t, res.err, ErrRunFailed)
}

func TestReduceCmd(t *testing.T) {
	cfg := testEnv(t)
	file := writeFile(t, "ex.ts", "const x: number = 1;\nconsole.log(x);\n")

	res := execute(t, cfg, "", "reduce", file)
	require.NoError(t, res.err)
	assert.Equal(t, "const x = 1;\nconsole.log(x);\n", res.stdout)

	res = execute(t, cfg, "", "reduce", file, "--explain")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "=== ")
	assert.True(t, strings.HasSuffix(res.stdout, "const x = 1;\nconsole.log(x);\n"))
}

func TestCatalogCmds(t *testing.T) {
	cfg := testEnv(t)

	res := execute(t, cfg, "", "catalog", "list")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "DAY")
	assert.Contains(t, res.stdout, "module-1-templating")
	assert.Contains(t, res.stdout, "module-5-documents")

	res = execute(t, cfg, "", "catalog", "adjacent", "module-1-templating", "01-first-template")
	require.NoError(t, res.err)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "prev: -", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "next: 1/module-1-templating/02-helpers  "), lines[1])

	res = execute(t, cfg, "", "catalog", "adjacent", "module-1-templating", "nope")
	assert.Error(t, res.err)
}

func TestProgressCmds(t *testing.T) {
	cfg := testEnv(t)
	code := writeFile(t, "saved.ts", "console.log('mine')")

	res := execute(t, cfg, "", "progress", "save", "module-1-templating", "02-helpers", code)
	require.NoError(t, res.err)

	res = execute(t, cfg, "", "progress", "show", "module-1-templating", "02-helpers")
	require.NoError(t, res.err)
	assert.Equal(t, "completed: false\nsaved code:\nconsole.log('mine')\n", res.stdout)

	res = execute(t, cfg, "", "progress", "complete", "module-1-templating", "02-helpers")
	require.NoError(t, res.err)

	res = execute(t, cfg, "", "progress", "count", "module-1-templating")
	require.NoError(t, res.err)
	assert.Equal(t, "1\n", res.stdout)

	res = execute(t, cfg, "", "progress", "reset", "module-1-templating", "02-helpers")
	require.NoError(t, res.err)

	res = execute(t, cfg, "", "progress", "show", "module-1-templating", "02-helpers")
	require.NoError(t, res.err)
	assert.Equal(t, "completed: false\nsaved code: none\n", res.stdout)

	res = execute(t, cfg, "", "progress", "complete", "no-such-module", "x")
	assert.Error(t, res.err)
}

func TestConfigCmds(t *testing.T) {
	cfg := testEnv(t)

	res := execute(t, cfg, "", "config", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "gateway:")
	assert.Contains(t, res.stdout, "timeout: 5s")

	res = execute(t, cfg, "", "config", "get", "runner.pool_size")
	require.NoError(t, res.err)
	assert.Equal(t, "4\n", res.stdout)

	res = execute(t, cfg, "", "config", "set", "gateway.port", "9100")
	require.NoError(t, res.err)

	res = execute(t, cfg, "", "config", "get", "gateway.port")
	require.NoError(t, res.err)
	assert.Equal(t, "9100\n", res.stdout)

	res = execute(t, cfg, "", "config", "set", "no.such.key", "1")
	assert.Error(t, res.err)

	res = execute(t, cfg, "", "config", "path")
	require.NoError(t, res.err)
	assert.Equal(t, cfg+"\n", res.stdout)
}

func TestConfigInit(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "new", "config.yaml")

	res := execute(t, path, "", "config", "init")
	require.NoError(t, res.err)
	assert.FileExists(t, path)

	res = execute(t, path, "", "config", "init")
	assert.Error(t, res.err)

	res = execute(t, path, "", "config", "init", "--force")
	assert.NoError(t, res.err)
}

// syncBuffer is written by the serve goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeCmdStopsOnCancel(t *testing.T) {
	cfg := testEnv(t)

	root := NewRootCmd()
	var out syncBuffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--config", cfg, "serve", "--port", "0", "--no-watch", "--no-cleanup"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "runbox listening on http://127.0.0.1:")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
