package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/agentgraph/engine"
)

func TestSkillTool_ProvideMissingSkillNameErrors(t *testing.T) {
	h := &skillHandle{}
	_, err := h.Provide(context.Background(), engine.NodeInit{NodeID: "sk-1"})
	assert.Error(t, err)
}

func TestSkillTool_ProvideDerivesSpecFromSkillPackage(t *testing.T) {
	h := &skillHandle{}
	instance, err := h.Provide(context.Background(), engine.NodeInit{
		NodeID: "sk-1",
		Config: map[string]any{"skillName": "read_file"},
	})
	require.NoError(t, err)
	st := instance.(*skillTool)
	assert.Equal(t, "read_file", st.ToolSpec().Name)
	assert.Contains(t, st.ToolSpec().Description, "read_file")
}

func TestSkillTool_ExecuteUnknownSkillErrors(t *testing.T) {
	st := &skillTool{nodeID: "sk-1", skillName: "no_such_skill", pkg: localSkillPackage{}}
	_, err := st.Execute(context.Background(), map[string]any{})
	assert.ErrorContains(t, err, "unknown tool")
}

func TestSkillTool_RunShellCodeExecutesAndCapturesOutput(t *testing.T) {
	if _, err := os.Stat("/bin/bash"); os.IsNotExist(err) {
		t.Skip("bash not available")
	}
	st := &skillTool{nodeID: "sk-1", skillName: "run_shell_code", pkg: localSkillPackage{}}
	out, err := st.Execute(context.Background(), map[string]any{"code": "echo hello"})
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
}

func TestSkillTool_RunShellCodeMissingCodeErrors(t *testing.T) {
	st := &skillTool{nodeID: "sk-1", skillName: "run_shell_code", pkg: localSkillPackage{}}
	_, err := st.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestSkillTool_ReadFileResolvesRelativeToSkillPackagePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("from skill dir"), 0o644))

	st := &skillTool{nodeID: "sk-1", skillName: "read_file", pkg: localSkillPackage{path: dir}}
	out, err := st.Execute(context.Background(), map[string]any{"filePath": "note.txt"})
	require.NoError(t, err)
	assert.Equal(t, "from skill dir", out)
}

func TestSkillTool_ReadFileMissingPathErrors(t *testing.T) {
	st := &skillTool{nodeID: "sk-1", skillName: "read_file", pkg: localSkillPackage{}}
	_, err := st.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestSkillTool_WriteFileReportsSuccess(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")

	st := &skillTool{nodeID: "sk-1", skillName: "write_file", pkg: localSkillPackage{}}
	out, err := st.Execute(context.Background(), map[string]any{"filePath": target, "content": "payload"})
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully wrote to file")

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestSkillTool_CustomScriptUsesScriptMapOverArgs(t *testing.T) {
	if _, err := os.Stat("/bin/bash"); os.IsNotExist(err) {
		t.Skip("bash not available")
	}
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/bash\necho from-script"), 0o755))

	st := &skillTool{
		nodeID:    "sk-1",
		skillName: "custom_script",
		pkg:       localSkillPackage{},
		scriptMap: map[string]string{"sk-1": scriptPath},
	}
	out, err := st.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "from-script")
}

func TestSkillTool_WebSearchParsesInstantAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"AbstractText":"The Go programming language","AbstractURL":"https://go.dev"}`))
	}))
	defer srv.Close()

	st := &skillTool{nodeID: "sk-1", skillName: "web_search", pkg: localSkillPackage{}, webSearchBaseURL: srv.URL}

	out, err := st.Execute(context.Background(), map[string]any{"query": "golang"})
	require.NoError(t, err)
	assert.Contains(t, out, "go.dev")
}

func TestSkillTool_WebSearchMissingQueryErrors(t *testing.T) {
	st := &skillTool{nodeID: "sk-1", skillName: "web_search", pkg: localSkillPackage{}}
	_, err := st.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}
