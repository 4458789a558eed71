package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	mcplib "github.com/metoro-io/mcp-golang"

	"github.com/run-bigpig/plan-context/pkg/interfaces"
	"github.com/run-bigpig/plan-context/pkg/logging"
	"github.com/run-bigpig/plan-context/pkg/scope"
)

// KeyArgs identifies a plan context scope
type KeyArgs struct {
	ProjectID string `json:"project_id" jsonschema:"description=Project that owns the plan context" required:"true"`
	SessionID string `json:"session_id,omitempty" jsonschema:"description=Optional session narrowing the scope to one session"`
}

func (a KeyArgs) key() interfaces.ContextKey {
	return interfaces.ContextKey{ProjectID: a.ProjectID, SessionID: a.SessionID}
}

// ActivateArgs defines the arguments of activate_plan_context
type ActivateArgs struct {
	KeyArgs
	ReferenceID string `json:"reference_id" jsonschema:"description=Identifier of the plan to make active" required:"true"`
	Timeout     string `json:"timeout,omitempty" jsonschema:"description=Lifetime such as 30m or 2h. The store default is used when empty"`
}

// ExtendArgs defines the arguments of extend_plan_context
type ExtendArgs struct {
	KeyArgs
	Timeout string `json:"timeout,omitempty" jsonschema:"description=New lifetime counted from now such as 30m. The store default is used when empty"`
}

// ListArgs defines the arguments of list_plan_contexts
type ListArgs struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"description=Only list contexts of this project"`
}

// SweepArgs defines the arguments of sweep_plan_contexts
type SweepArgs struct{}

// LookupResult is the JSON body returned by lookup_plan_context
type LookupResult struct {
	Found       bool   `json:"found"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// ContextTools exposes a context store as MCP tools
type ContextTools struct {
	store  interfaces.ContextStore
	logger logging.Logger
	// base is the parent of every call context; handlers receive no context
	// from the transport.
	base context.Context
}

// ToolsOption configures ContextTools
type ToolsOption func(*ContextTools)

// WithToolsLogger sets the logger
func WithToolsLogger(logger logging.Logger) ToolsOption {
	return func(t *ContextTools) {
		t.logger = logger
	}
}

// WithBaseContext sets the parent context of tool calls
func WithBaseContext(ctx context.Context) ToolsOption {
	return func(t *ContextTools) {
		t.base = ctx
	}
}

// NewContextTools creates the tool set for store
func NewContextTools(store interfaces.ContextStore, options ...ToolsOption) *ContextTools {
	t := &ContextTools{
		store:  store,
		logger: logging.NewNop(),
		base:   context.Background(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Register adds every tool to server
func (t *ContextTools) Register(server *mcplib.Server) error {
	tools := []struct {
		name        string
		description string
		handler     any
	}{
		{"activate_plan_context", "Makes a plan the active plan of a project or session until the timeout passes", t.Activate},
		{"lookup_plan_context", "Returns the active plan of a project or session, if it has not expired", t.Lookup},
		{"extend_plan_context", "Pushes back the expiry of the active plan of a project or session", t.Extend},
		{"clear_plan_context", "Removes the active plan of a project or session", t.Clear},
		{"list_plan_contexts", "Lists every active plan context", t.List},
		{"sweep_plan_contexts", "Removes every expired plan context", t.Sweep},
	}
	for _, tool := range tools {
		if err := server.RegisterTool(tool.name, tool.description, tool.handler); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.name, err)
		}
	}
	return nil
}

func (t *ContextTools) callContext(key interfaces.ContextKey) context.Context {
	return scope.WithKey(t.base, key)
}

func timeoutOptions(timeout string) ([]interfaces.ContextOption, error) {
	if timeout == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout %q: %w", timeout, err)
	}
	return []interfaces.ContextOption{interfaces.WithTimeout(d)}, nil
}

func textResponse(format string, args ...any) *mcplib.ToolResponse {
	return mcplib.NewToolResponse(mcplib.NewTextContent(fmt.Sprintf(format, args...)))
}

func jsonResponse(v any) (*mcplib.ToolResponse, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcplib.NewToolResponse(mcplib.NewTextContent(string(data))), nil
}

// Activate handles activate_plan_context
func (t *ContextTools) Activate(args ActivateArgs) (*mcplib.ToolResponse, error) {
	options, err := timeoutOptions(args.Timeout)
	if err != nil {
		return nil, err
	}
	key := args.key()
	if err := t.store.Activate(t.callContext(key), args.ReferenceID, key, options...); err != nil {
		return nil, err
	}
	return textResponse("plan %s is active for %s", args.ReferenceID, key), nil
}

// Lookup handles lookup_plan_context
func (t *ContextTools) Lookup(args KeyArgs) (*mcplib.ToolResponse, error) {
	key := args.key()
	ref, ok, err := t.store.Lookup(t.callContext(key), key)
	if err != nil {
		return nil, err
	}
	return jsonResponse(LookupResult{Found: ok, ReferenceID: ref})
}

// Extend handles extend_plan_context
func (t *ContextTools) Extend(args ExtendArgs) (*mcplib.ToolResponse, error) {
	options, err := timeoutOptions(args.Timeout)
	if err != nil {
		return nil, err
	}
	key := args.key()
	extended, err := t.store.Extend(t.callContext(key), key, options...)
	if err != nil {
		return nil, err
	}
	if !extended {
		return textResponse("no plan context for %s", key), nil
	}
	return textResponse("plan context for %s extended", key), nil
}

// Clear handles clear_plan_context
func (t *ContextTools) Clear(args KeyArgs) (*mcplib.ToolResponse, error) {
	key := args.key()
	removed, err := t.store.Clear(t.callContext(key), key)
	if err != nil {
		return nil, err
	}
	if !removed {
		return textResponse("no plan context for %s", key), nil
	}
	return textResponse("plan context for %s cleared", key), nil
}

// List handles list_plan_contexts. Contexts are ordered by project, then
// session, with the project-wide context first.
func (t *ContextTools) List(args ListArgs) (*mcplib.ToolResponse, error) {
	active, err := t.store.ListActive(t.base)
	if err != nil {
		return nil, err
	}

	contexts := make([]interfaces.PlanContext, 0, len(active))
	for _, ac := range active {
		if args.ProjectID != "" && ac.Key.ProjectID != args.ProjectID {
			continue
		}
		contexts = append(contexts, ac.Context)
	}
	sort.Slice(contexts, func(i, j int) bool {
		if contexts[i].ProjectID != contexts[j].ProjectID {
			return contexts[i].ProjectID < contexts[j].ProjectID
		}
		return contexts[i].SessionID < contexts[j].SessionID
	})
	return jsonResponse(contexts)
}

// Sweep handles sweep_plan_contexts
func (t *ContextTools) Sweep(_ SweepArgs) (*mcplib.ToolResponse, error) {
	removed, err := t.store.Sweep(t.base)
	if err != nil {
		return nil, err
	}
	t.logger.Info(t.base, "manual sweep", map[string]interface{}{"removed": removed})
	return textResponse("removed %d expired plan contexts", removed), nil
}
