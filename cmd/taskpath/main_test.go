package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// bareProject writes inputs into a temp dir without a .taskpath directory
// and makes it the working directory.
func bareProject(t *testing.T, relations, tasks, question string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relations.txt"), []byte(relations), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task_ids.txt"), []byte(tasks), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "question.txt"), []byte(question), 0644))
	testChdir(t, dir)
	return dir
}

func TestRun_VersionHelpUnknown(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "taskpath "+version+"\n", out)

	code, out, _ = runCLI(t, "help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "resolve [flags]")

	code, _, errOut := runCLI(t, "frobnicate")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "unknown command: frobnicate")

	code, _, _ = runCLI(t)
	assert.Equal(t, exitFailure, code)
}

func TestResolve_Defaults(t *testing.T) {
	bareProject(t, "73->20\n20->97\n97->94\n", "73,20,97,94,56\n", "start: 73\ngoal: 94\n")

	code, out, errOut := runCLI(t, "resolve")
	assert.Equal(t, exitOK, code, errOut)
	assert.Equal(t, "73,20,97,94\n", out)
	assert.NotContains(t, errOut, "no route found")
}

func TestResolve_FormatsAndOutput(t *testing.T) {
	dir := bareProject(t, "1->2\n2->3\n", "1,2,3", "start: 1\ngoal: 3")

	code, out, _ := runCLI(t, "resolve", "--joiner", " -> ")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "1 -> 2 -> 3\n", out)

	code, out, _ = runCLI(t, "resolve", "--format", "json")
	require.Equal(t, exitOK, code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, true, doc["route_found"])

	outPath := filepath.Join(dir, "out", "path.yaml")
	code, out, _ = runCLI(t, "resolve", "--format", "yaml", "--out", outPath)
	require.Equal(t, exitOK, code)
	assert.Empty(t, out)
	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), "file_type: query_result")

	code, _, errOut := runCLI(t, "resolve", "--format", "xml")
	assert.Equal(t, exitConfiguration, code)
	assert.Contains(t, errOut, "output.format")
}

func TestResolve_NoRoute(t *testing.T) {
	bareProject(t, "1->2\n3->4\n", "1,2,3,4", "start: 1\ngoal: 4")

	code, out, errOut := runCLI(t, "resolve")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "4\n", out)
	assert.Contains(t, errOut, "no route found from 1 to 4")
}

func TestResolve_ExitCodes(t *testing.T) {
	tests := []struct {
		name      string
		relations string
		tasks     string
		question  string
		want      int
		stderr    string
	}{
		{"unknown goal", "1->2\n", "1,2", "start: 1\ngoal: 9", exitTaskNotFound, `goal "9"`},
		{"malformed relation", "1->2\n2 3\n", "1,2,3", "start: 1\ngoal: 3", exitFormat, "relations.txt"},
		{"empty task list", "1->2\n", "", "start: 1\ngoal: 2", exitConfiguration, "error:"},
		{"unknown edge endpoint", "1->2\n2->7\n", "1,2", "start: 1\ngoal: 2", exitTaskNotFound, `"7"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bareProject(t, tt.relations, tt.tasks, tt.question)
			code, out, errOut := runCLI(t, "resolve")
			assert.Equal(t, tt.want, code, errOut)
			assert.Empty(t, out)
			assert.Contains(t, errOut, tt.stderr)
		})
	}
}

func TestResolve_MissingInput(t *testing.T) {
	bareProject(t, "1->2\n", "1,2", "start: 1\ngoal: 2")

	code, _, errOut := runCLI(t, "resolve", "--relations", "absent.txt")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "open input")
}

func TestResolve_BadFlags(t *testing.T) {
	bareProject(t, "1->2\n", "1,2", "start: 1\ngoal: 2")

	code, _, errOut := runCLI(t, "resolve", "--verbose")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "unknown flag: --verbose")

	code, _, errOut = runCLI(t, "resolve", "--out")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "--out requires a value")
}

func TestClosure(t *testing.T) {
	bareProject(t, "1->3\n2->3\n3->4\n", "1,2,3,4", "start: 3\ngoal: 4")

	code, out, _ := runCLI(t, "closure")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "1,2,3\n", out)

	code, out, _ = runCLI(t, "closure", "--format", "json")
	require.Equal(t, exitOK, code)
	var rep closureReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.EqualValues(t, "3", rep.Start)
	assert.Len(t, rep.Closure, 3)
}

func TestCheck(t *testing.T) {
	bareProject(t, "1->2\n2->3\n", "3,2,1", "")

	code, out, _ := runCLI(t, "check")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "ok: 3 tasks, 2 edges")
	assert.Contains(t, out, "order: 1,2,3")

	require.NoError(t, os.WriteFile("relations.txt", []byte("1->2\n2->1\n"), 0644))
	code, _, errOut := runCLI(t, "check")
	assert.Equal(t, exitConfiguration, code)
	assert.Contains(t, errOut, "circular dependency")
}

func TestSetupResolveAndAudit(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "proj")
	require.NoError(t, os.Mkdir(project, 0755))

	code, out, errOut := runCLI(t, "setup", project, "--name", "demo", "--example")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "Initialized .taskpath/")

	code, _, _ = runCLI(t, "setup", project)
	assert.Equal(t, exitFailure, code, "second setup refuses to overwrite")

	// run from a subdirectory to exercise the upward search
	sub := filepath.Join(project, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	testChdir(t, sub)

	code, out, errOut = runCLI(t, "resolve")
	require.Equal(t, exitOK, code, errOut)
	assert.Equal(t, "73,20,97,94\n", out)

	_, err := os.Stat(filepath.Join(project, ".taskpath", "logs", "audit.jsonl"))
	require.NoError(t, err)

	code, out, _ = runCLI(t, "audit", "verify")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "entries=1 valid=1 malformed=0\n", out)

	code, _, errOut = runCLI(t, "watch", "status")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "taskpath watch")
}

func TestProjectCommandsNeedTaskpathDir(t *testing.T) {
	testChdir(t, t.TempDir())

	code, _, errOut := runCLI(t, "watch")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, ".taskpath/ directory not found")

	code, _, _ = runCLI(t, "audit", "verify")
	assert.Equal(t, exitFailure, code)

	code, _, errOut = runCLI(t, "audit")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "usage: taskpath audit verify")
}

// testChdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it
// changes the working directory and restores it when the test finishes.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	require.NoError(t, os.Chdir(abs))
	t.Setenv("PWD", abs)
	t.Cleanup(func() {
		if err := os.Chdir(oldwd); err != nil {
			panic("testChdir: restoring working directory: " + err.Error())
		}
	})
}
