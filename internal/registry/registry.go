// Package registry implements the Tool Registry component: named tool
// lookup plus session-typed policy admission, enforced at two gates —
// schema presentation and a defensive re-check at execution.
package registry

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// Registry maps tool name to Tool. Registration is exclusive: re-registering
// an existing name overwrites it and logs the replacement, matching the
// teacher's own registry semantics.
//
// Grounded on internal/agent/tool_registry.go's ToolRegistry{mu
// sync.RWMutex, tools map[string]Tool}.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]models.Tool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]models.Tool)}
}

// Register adds tool to the registry, compiling its schema document with
// jsonschema/v5 to catch malformed tool authoring before the tool is ever
// presented to a model. An empty schema is treated as "no parameters" and
// skips compilation.
func (r *Registry) Register(tool models.Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("registry: tool name is required")
	}
	if tool.Execute == nil {
		return fmt.Errorf("registry: tool %q has no execute function", tool.Name)
	}
	if len(tool.Schema) > 0 {
		if err := validateSchemaDocument(tool.Name, tool.Schema); err != nil {
			return err
		}
	}
	if tool.Policy.AllowedSessionTypes == nil {
		tool.Policy = models.DefaultToolPolicy()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		slog.Warn("registry: overwriting existing tool registration", "tool", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Unregister removes a tool by name. A no-op if the name is unknown.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (models.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// CheckPolicy reports whether sessionType is permitted to use tool.
func (r *Registry) CheckPolicy(tool models.Tool, sessionType models.SessionType) bool {
	return tool.Policy.Allows(sessionType)
}

// List returns every registered tool, sorted by name for deterministic
// iteration in tests and schema presentation.
func (r *Registry) List() []models.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SchemasFor returns the subset of registered tools admissible for
// sessionType — the set presented to the model so disallowed tools are
// unknown to it, not merely rejected later.
func (r *Registry) SchemasFor(sessionType models.SessionType) []models.Tool {
	all := r.List()
	out := make([]models.Tool, 0, len(all))
	for _, t := range all {
		if r.CheckPolicy(t, sessionType) {
			out = append(out, t)
		}
	}
	return out
}

func validateSchemaDocument(toolName string, schema models.RawSchema) error {
	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("mem://agentcore/tools/%s.json", toolName)
	if err := compiler.AddResource(url, schemaReader(schema)); err != nil {
		return fmt.Errorf("registry: tool %q has an invalid schema document: %w", toolName, err)
	}
	if _, err := compiler.Compile(url); err != nil {
		return fmt.Errorf("registry: tool %q schema failed to compile: %w", toolName, err)
	}
	return nil
}

func schemaReader(schema models.RawSchema) io.Reader {
	return bytes.NewReader(schema)
}
