package main

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"aca-sandbox/internal/sandbox"
	"aca-sandbox/internal/toolkit"
)

type tools struct {
	svc          *toolkit.Service
	maxCodeChars int
}

var codeProperties = map[string]any{
	"code": map[string]any{
		"type":        "string",
		"description": "Source code",
	},
	"language": map[string]any{
		"type":        "string",
		"description": "Snippet language (python or go, default python)",
	},
}

func registerTools(s *server.MCPServer, t *tools) {
	langs := strings.Join(t.svc.Languages(), ", ")

	runProps := map[string]any{
		"capabilities": map[string]any{
			"type":        "string",
			"description": "Capability set: basic (default) or extended",
		},
	}
	for k, v := range codeProperties {
		runProps[k] = v
	}
	s.AddTool(mcp.Tool{
		Name:        "code_run",
		Description: fmt.Sprintf("Run a snippet in the restricted interpreter and return its output or a traceback. Languages: %s.", langs),
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: runProps, Required: []string{"code"}},
	}, t.handleRun)

	for _, tool := range []struct {
		name, desc string
		handler    server.ToolHandlerFunc
	}{
		{"code_lint", "Report long lines, bare excepts, TODO markers and whitespace issues.", t.handleLint},
		{"code_analyze", "Count lines, functions, loops and if statements.", t.handleAnalyze},
		{"code_suggest", "Suggest style improvements.", t.handleSuggest},
		{"code_explain", "Summarize the functions, classes and imports a snippet defines.", t.handleExplain},
	} {
		s.AddTool(mcp.Tool{
			Name:        tool.name,
			Description: tool.desc,
			InputSchema: mcp.ToolInputSchema{Type: "object", Properties: codeProperties, Required: []string{"code"}},
		}, tool.handler)
	}

	s.AddTool(mcp.Tool{
		Name:        "file_read",
		Description: "Read the first lines of a file in the sandbox directory.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path, relative to the sandbox directory",
				},
				"lines": map[string]any{
					"type":        "number",
					"description": "Number of lines to return (default 20)",
				},
			},
			Required: []string{"path"},
		},
	}, t.handleRead)
}

// codeArgs extracts code and language, enforcing the size limit.
func (t *tools) codeArgs(request mcp.CallToolRequest) (code, lang string, res *mcp.CallToolResult) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return "", "", errResult("error: invalid arguments")
	}
	code, _ = args["code"].(string)
	lang, _ = args["language"].(string)
	if t.maxCodeChars > 0 && utf8.RuneCountInString(code) > t.maxCodeChars {
		return "", "", errResult(fmt.Sprintf("Error: Code too long (max %d characters)", t.maxCodeChars))
	}
	return code, lang, nil
}

func (t *tools) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, lang, res := t.codeArgs(request)
	if res != nil {
		return res, nil
	}
	args, _ := request.Params.Arguments.(map[string]any)
	caps, _ := args["capabilities"].(string)

	// The calling agent has already decided to run the code.
	result, err := t.svc.Run(ctx, sandbox.ExecutionRequest{
		Source:       code,
		Language:     lang,
		Capabilities: caps,
		Confirmed:    true,
	})
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: result.Text()}},
		IsError: !result.Succeeded,
	}, nil
}

func (t *tools) handleLint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, lang, res := t.codeArgs(request)
	if res != nil {
		return res, nil
	}
	_, text := t.svc.Lint(ctx, lang, code)
	return textResult(text), nil
}

func (t *tools) handleAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, lang, res := t.codeArgs(request)
	if res != nil {
		return res, nil
	}
	report, text := t.svc.Analyze(ctx, lang, code)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: report == nil,
	}, nil
}

func (t *tools) handleSuggest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, lang, res := t.codeArgs(request)
	if res != nil {
		return res, nil
	}
	_, text := t.svc.Suggest(ctx, lang, code)
	return textResult(text), nil
}

func (t *tools) handleExplain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, lang, res := t.codeArgs(request)
	if res != nil {
		return res, nil
	}
	return textResult(t.svc.Explain(ctx, lang, code)), nil
}

func (t *tools) handleRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}
	path, _ := args["path"].(string)
	if path == "" {
		return errResult("error: 'path' is required"), nil
	}
	lines := 0
	if n, ok := args["lines"].(float64); ok {
		lines = int(n)
	}
	return textResult(t.svc.Read(ctx, path, lines)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
