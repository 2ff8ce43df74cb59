package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/smallnest/goskills"

	"github.com/smallnest/agentgraph/engine"
)

// SkillTemplateID is the template id graphs reference for a goskills-backed
// local sandbox tool node: shell, python, file and web-search skills run
// directly on the host rather than through a wired runtime.Execer.
const SkillTemplateID = "tool.skill"

// localSkillPackage satisfies goskills.SkillPackage so a configured skill
// node can be described the same way a loaded skill directory would be.
type localSkillPackage struct {
	name        string
	description string
	version     string
	path        string
}

func (p localSkillPackage) GetName() string        { return p.name }
func (p localSkillPackage) GetDescription() string { return p.description }
func (p localSkillPackage) GetVersion() string     { return p.version }
func (p localSkillPackage) GetPath() string        { return p.path }

var _ goskills.SkillPackage = localSkillPackage{}

// skillTool exposes a single named goskills-style operation as a tool. Each
// node instance binds exactly one skillName; graphs wanting several skills
// wire up several tool.skill nodes.
type skillTool struct {
	nodeID    string
	spec      engine.ToolSpec
	skillName string
	scriptMap map[string]string
	pkg       goskills.SkillPackage

	// webSearchBaseURL defaults to the DuckDuckGo Instant Answer endpoint;
	// overridable so tests can point it at a local server.
	webSearchBaseURL string
}

func (t *skillTool) ToolSpec() engine.ToolSpec {
	return t.spec
}

func (t *skillTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	switch t.skillName {
	case "run_shell_code":
		return t.runShellCode(ctx, args)
	case "run_shell_script":
		return t.runScriptPath(ctx, "bash", args)
	case "run_python_code":
		return t.runPythonCode(ctx, args)
	case "run_python_script":
		return t.runScriptPath(ctx, pythonInterpreter(), args)
	case "read_file":
		return t.readFile(args)
	case "write_file":
		return t.writeFile(args)
	case "web_search":
		return t.webSearch(ctx, args)
	case "custom_script":
		return t.runCustomScript(ctx, args)
	default:
		return "", fmt.Errorf("skill tool %q: unknown tool %q", t.nodeID, t.skillName)
	}
}

func (t *skillTool) resolvePath(p string) string {
	base := t.pkg.GetPath()
	if p == "" || filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

func stringArgs(args map[string]any) []string {
	raw, _ := args["args"].([]any)
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		if s, ok := a.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (t *skillTool) runShellCode(ctx context.Context, args map[string]any) (string, error) {
	code, _ := args["code"].(string)
	if code == "" {
		return "", fmt.Errorf("skill tool %q: missing required argument %q", t.nodeID, "code")
	}
	argv := append([]string{"-c", code, "bash"}, stringArgs(args)...)
	return runCommand(ctx, "bash", argv)
}

func (t *skillTool) runPythonCode(ctx context.Context, args map[string]any) (string, error) {
	code, _ := args["code"].(string)
	if code == "" {
		return "", fmt.Errorf("skill tool %q: missing required argument %q", t.nodeID, "code")
	}
	argv := append([]string{"-c", code}, stringArgs(args)...)
	return runCommand(ctx, pythonInterpreter(), argv)
}

func (t *skillTool) runScriptPath(ctx context.Context, interpreter string, args map[string]any) (string, error) {
	scriptPath, _ := args["scriptPath"].(string)
	if scriptPath == "" {
		return "", fmt.Errorf("skill tool %q: missing required argument %q", t.nodeID, "scriptPath")
	}
	return runCommand(ctx, interpreter, append([]string{t.resolvePath(scriptPath)}, stringArgs(args)...))
}

func (t *skillTool) runCustomScript(ctx context.Context, args map[string]any) (string, error) {
	scriptPath, ok := t.scriptMap[t.nodeID]
	if !ok {
		scriptPath, _ = args["scriptPath"].(string)
	}
	if scriptPath == "" {
		return "", fmt.Errorf("skill tool %q: no script registered", t.nodeID)
	}
	return runCommand(ctx, "bash", append([]string{t.resolvePath(scriptPath)}, stringArgs(args)...))
}

func runCommand(ctx context.Context, name string, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, argv...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("skill exec: %w: %s", err, string(out))
	}
	return string(out), nil
}

func pythonInterpreter() string {
	if _, err := exec.LookPath("python3"); err == nil {
		return "python3"
	}
	return "python"
}

func (t *skillTool) readFile(args map[string]any) (string, error) {
	filePath, _ := args["filePath"].(string)
	if filePath == "" {
		return "", fmt.Errorf("skill tool %q: missing required argument %q", t.nodeID, "filePath")
	}
	content, err := os.ReadFile(t.resolvePath(filePath))
	if err != nil {
		return "", fmt.Errorf("skill tool %q: read file: %w", t.nodeID, err)
	}
	return string(content), nil
}

func (t *skillTool) writeFile(args map[string]any) (string, error) {
	filePath, _ := args["filePath"].(string)
	content, _ := args["content"].(string)
	if filePath == "" {
		return "", fmt.Errorf("skill tool %q: missing required argument %q", t.nodeID, "filePath")
	}
	resolved := t.resolvePath(filePath)
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("skill tool %q: write file: %w", t.nodeID, err)
	}
	return fmt.Sprintf("Successfully wrote to file %s", resolved), nil
}

// duckDuckGoResponse is the subset of the Instant Answer API payload this
// skill summarizes.
type duckDuckGoResponse struct {
	AbstractText string `json:"AbstractText"`
	AbstractURL  string `json:"AbstractURL"`
	Answer       string `json:"Answer"`
}

func (t *skillTool) webSearch(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("skill tool %q: missing required argument %q", t.nodeID, "query")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	base := t.webSearchBaseURL
	if base == "" {
		base = "https://api.duckduckgo.com/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "agentgraph-skill-tool/1.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("skill tool %q: web search: %w", t.nodeID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var ddg duckDuckGoResponse
	if err := json.Unmarshal(body, &ddg); err != nil {
		return "", fmt.Errorf("skill tool %q: parse response: %w", t.nodeID, err)
	}

	switch {
	case ddg.AbstractText != "":
		return fmt.Sprintf("%s\nSource: %s", ddg.AbstractText, ddg.AbstractURL), nil
	case ddg.Answer != "":
		return ddg.Answer, nil
	default:
		return "no instant answer found", nil
	}
}

type skillHandle struct{}

func (h *skillHandle) Provide(ctx context.Context, init engine.NodeInit) (any, error) {
	skillName, _ := init.Config["skillName"].(string)
	if skillName == "" {
		return nil, fmt.Errorf("skill tool %q: missing required config %q", init.NodeID, "skillName")
	}
	description, _ := init.Config["description"].(string)
	if description == "" {
		description = fmt.Sprintf("Run the %s skill in a local sandbox.", skillName)
	}
	skillPath, _ := init.Config["skillPath"].(string)

	scriptMap := make(map[string]string)
	if raw, ok := init.Config["scriptPath"].(string); ok && raw != "" {
		scriptMap[init.NodeID] = raw
	}

	pkg := localSkillPackage{
		name:        skillName,
		description: description,
		version:     "1.0.0",
		path:        skillPath,
	}

	webSearchBaseURL, _ := init.Config["webSearchBaseURL"].(string)

	return &skillTool{
		nodeID:           init.NodeID,
		skillName:        skillName,
		scriptMap:        scriptMap,
		pkg:              pkg,
		webSearchBaseURL: webSearchBaseURL,
		spec: engine.ToolSpec{
			Name:        pkg.GetName(),
			Description: pkg.GetDescription(),
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}, nil
}

func (h *skillHandle) Configure(ctx context.Context, init engine.NodeInit, instance any, frame *engine.CompileFrame) error {
	return nil
}

func (h *skillHandle) Destroy(ctx context.Context, instance any) error {
	return nil
}

// NewSkillTemplate registers the goskills-backed local sandbox tool
// template.
func NewSkillTemplate() *engine.Template {
	return &engine.Template{
		ID:      SkillTemplateID,
		Kind:    engine.NodeKindTool,
		Inputs:  nil,
		Outputs: nil,
		Create:  func() engine.NodeHandle { return &skillHandle{} },
	}
}
