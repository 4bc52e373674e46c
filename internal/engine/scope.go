package engine

import (
	"fmt"
	"time"

	"github.com/alexisbeaulieu97/compositor/internal/config"
	"github.com/alexisbeaulieu97/compositor/internal/model"
)

// ScopeHandle addresses a context registered in a ScopeTree.
type ScopeHandle int

const noParent ScopeHandle = -1

type scopeNode struct {
	parent ScopeHandle
	ctx    *ExecutionContext
}

// ScopeTree owns every context of one invocation. Contexts reference their
// parent by handle instead of holding pointers into each other.
type ScopeTree struct {
	nodes []scopeNode
	steps *model.StepsTable
}

// NewScopeTree creates a tree anchored to the given steps table.
func NewScopeTree(steps *model.StepsTable) *ScopeTree {
	return &ScopeTree{steps: steps}
}

func (t *ScopeTree) register(ec *ExecutionContext, parent ScopeHandle) ScopeHandle {
	handle := ScopeHandle(len(t.nodes))
	t.nodes = append(t.nodes, scopeNode{parent: parent, ctx: ec})
	ec.Handle = handle
	return handle
}

// Child creates the context of the index-th sub-step of the composite run by
// parent. inputs are shared by reference with the parent; the remaining
// contexts are copied so the child can rebind them. steps is bound to the
// sibling scope the child is recorded in, so the step's own if, env, name and
// continue-on-error see earlier siblings. A nested composite rebinds steps to
// its inner scope once it starts running.
func (t *ScopeTree) Child(parent *ExecutionContext, step config.StepSpec, index int) *ExecutionContext {
	if parent == nil {
		panic("engine: Child called without a parent context")
	}
	if int(parent.Handle) < 0 || int(parent.Handle) >= len(t.nodes) || t.nodes[parent.Handle].ctx != parent {
		panic(fmt.Sprintf("engine: parent context %q is not registered in this scope tree", parent.QualifiedName()))
	}

	name := step.ID
	if name == "" {
		name = fmt.Sprintf("%s%d", model.HiddenStepPrefix, index)
	}
	scope := parent.ChildScope()

	t.steps.EnsureScope(scope)
	if isNested(step) {
		t.steps.EnsureScope(joinScope(scope, name))
	}

	values := cloneValues(parent.Values)
	values.Set(ContextSteps, t.steps.ContextValue(scope))

	var parentEnv *model.ContextValue
	if v, ok := parent.Values.Get(ContextEnv); ok && v.Kind() == model.KindMapping {
		parentEnv = v
	}

	child := &ExecutionContext{
		ScopeName:   scope,
		ContextName: name,
		Step:        step,
		Index:       index,
		Values:      values,
		Env:         parent.Env.Clone(),
		Context:     parent.Context,
		ActionPath:  parent.ActionPath,
		Logger:      parent.Runtime.Logger.With("scope", scope).With("step", name),
		Runtime:     parent.Runtime,
		Outputs:     make(map[string]string),
		parentEnv:   parentEnv,
		started:     time.Now(),
	}
	t.register(child, parent.Handle)
	return child
}

// Parent returns the context that created the context at handle.
func (t *ScopeTree) Parent(handle ScopeHandle) (*ExecutionContext, bool) {
	if int(handle) < 0 || int(handle) >= len(t.nodes) {
		return nil, false
	}
	parent := t.nodes[handle].parent
	if parent == noParent {
		return nil, false
	}
	return t.nodes[parent].ctx, true
}

// Context returns the context registered at handle.
func (t *ScopeTree) Context(handle ScopeHandle) (*ExecutionContext, bool) {
	if int(handle) < 0 || int(handle) >= len(t.nodes) {
		return nil, false
	}
	return t.nodes[handle].ctx, true
}

// Children lists the handles created under handle, in creation order.
func (t *ScopeTree) Children(handle ScopeHandle) []ScopeHandle {
	var out []ScopeHandle
	for i, node := range t.nodes {
		if node.parent == handle {
			out = append(out, ScopeHandle(i))
		}
	}
	return out
}

// Len returns the number of registered contexts.
func (t *ScopeTree) Len() int {
	return len(t.nodes)
}

func isNested(step config.StepSpec) bool {
	return step.Uses != ""
}
