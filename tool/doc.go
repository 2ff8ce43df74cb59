// Package tool provides ready-to-use tools for the engine agents.
//
// The package contains one tool, BraveSearch, a web search over the Brave
// Search API. It has no file, shell, code-execution, HTTP or other search
// tools; the graph's own tool nodes live in package nodes/tool.
//
// # Brave Search
//
//	import "github.com/smallnest/agentgraph/tool"
//
//	// An empty key falls back to the BRAVE_API_KEY environment variable;
//	// with neither set, NewBraveSearch returns an error.
//	braveTool, err := tool.NewBraveSearch("",
//		tool.WithBraveCount(5),      // clamped to 1..20, default 10
//		tool.WithBraveCountry("US"), // default "US"
//		tool.WithBraveLang("en"),    // default "en"
//	)
//	if err != nil {
//		return err
//	}
//
//	// The input is the plain query text, not JSON
//	result, err := braveTool.Call(ctx, "latest developments in quantum computing")
//
// Name returns "Brave_Search". Call returns the web results as numbered
// "Title / URL / Description" blocks, or "No results found" when there are
// none. WithBraveBaseURL points the tool at another endpoint, for example a
// test server.
//
// # Tool Implementation
//
// ## Creating Custom Tools
//
// Implement the Tool interface:
//
//	import (
//		"github.com/tmc/langchaingo/tools"
//	)
//
//	type CustomTool struct {
//		apiKey string
//	}
//
//	func (t *CustomTool) Name() string {
//		return "custom_api_call"
//	}
//
//	func (t *CustomTool) Description() string {
//		return "Makes a call to the custom API"
//	}
//
//	func (t *CustomTool) Call(ctx context.Context, input string) (string, error) {
//		// Parse input
//		var params struct {
//			Query string `json:"query"`
//		}
//		if err := json.Unmarshal([]byte(input), &params); err != nil {
//			return "", err
//		}
//
//		// Make API call
//		result, err := t.callAPI(params.Query)
//		if err != nil {
//			return "", err
//		}
//
//		// Return result
//		return json.Marshal(result)
//	}
//
// # Security Considerations
//
//   - Validate all tool inputs
//   - Use chroot/sandboxing for code execution
//   - Set timeouts for network operations
//   - Restrict file system access
//   - Sanitize shell commands
//   - Use API keys securely
//   - Monitor tool usage
//
// # Error Handling
//
// BraveSearch.Call returns plain errors: request and decode failures wrap the
// underlying error with %w, and a non-200 reply yields an error carrying the
// HTTP status code. There is no structured tool error type.
//
// # Best Practices
//
//  1. Choose appropriate tools for your use case
//  2. Provide clear tool descriptions
//  3. Validate inputs before processing
//  4. Handle errors gracefully
//  5. Use timeouts for long-running operations
//  6. Monitor tool usage and performance
//  7. Secure sensitive operations
//  8. Test tools with various inputs
package tool
