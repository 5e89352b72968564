package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrToolNotFound = errors.New("tool not found")

// Tool represents an executable capability available to the agent
type Tool struct {
	Name        string
	Description string
	Parameters  ToolParameters
	Execute     ToolExecutor
	// Deferred tools answer immediately and finish in the background.
	Deferred bool
}

// ToolParameters defines the schema for tool inputs
type ToolParameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// Schema renders the parameters as a JSON-schema map.
func (p ToolParameters) Schema() map[string]interface{} {
	required := p.Required
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       p.Type,
		"properties": p.Properties,
		"required":   required,
	}
}

// ToolExecutor is the function signature for tool execution
type ToolExecutor func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ToolRegistry manages available tools
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewToolRegistry creates a new empty registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry
func (r *ToolRegistry) Register(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %s has no executor", tool.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	return nil
}

// Resolve finds a tool by exact name, falling back to the closest name
// so that slightly wrong names produced by an LLM still land.
func (r *ToolRegistry) Resolve(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tool, ok := r.tools[name]; ok {
		return tool, true
	}
	if match := r.fuzzyMatchLocked(name); match != "" {
		return r.tools[match], true
	}
	return nil, false
}

// Execute runs a tool with given parameters.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	tool, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return tool.Execute(ctx, params)
}

// fuzzyMatchLocked scores by shared underscore-separated words.
// Ties go to the smaller edit distance.
func (r *ToolRegistry) fuzzyMatchLocked(input string) string {
	inputWords := splitToolWords(input)

	bestName := ""
	bestScore := 0
	for name := range r.tools {
		score := wordOverlapScore(inputWords, splitToolWords(name))
		switch {
		case score > bestScore:
			bestScore, bestName = score, name
		case score == bestScore && score > 0 && levenshtein(input, name) < levenshtein(input, bestName):
			bestName = name
		}
	}
	return bestName
}

func splitToolWords(name string) []string {
	parts := []string{}
	for _, p := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool { return r == '_' || r == '-' || r == '.' }) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func wordOverlapScore(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, w := range b {
		set[w] = true
	}
	score := 0
	for _, w := range a {
		if set[w] {
			score++
		}
	}
	return score
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

// GetTool returns a tool by exact name
func (r *ToolRegistry) GetTool(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// ListTools returns all registered tools sorted by name
func (r *ToolRegistry) ListTools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// FormatToolsForPrompt lists tools as "name: description | params | required" lines.
func (r *ToolRegistry) FormatToolsForPrompt() string {
	var sb strings.Builder
	sb.WriteString("Available Tools:\n")
	for _, tool := range r.ListTools() {
		reqParams := ""
		if len(tool.Parameters.Required) > 0 {
			reqParams = " | required: " + strings.Join(tool.Parameters.Required, ", ")
		}

		paramsList := ""
		if len(tool.Parameters.Properties) > 0 {
			names := make([]string, 0, len(tool.Parameters.Properties))
			for pName := range tool.Parameters.Properties {
				names = append(names, pName)
			}
			sort.Strings(names)
			parts := make([]string, 0, len(names))
			for _, pName := range names {
				pType := "any"
				if pm, ok := tool.Parameters.Properties[pName].(map[string]interface{}); ok {
					if t, ok := pm["type"].(string); ok {
						pType = t
					}
				}
				parts = append(parts, pName+":"+pType)
			}
			paramsList = " | params: {" + strings.Join(parts, ", ") + "}"
		}

		tag := ""
		if tool.Deferred {
			tag = " [async]"
		}
		fmt.Fprintf(&sb, "- %s%s: %s%s%s\n", tool.Name, tag, tool.Description, paramsList, reqParams)
	}
	return sb.String()
}
