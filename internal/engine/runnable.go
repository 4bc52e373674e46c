package engine

import (
	"context"

	"github.com/alexisbeaulieu97/compositor/internal/config"
)

// Runnable executes the underlying action or command of one step. It may set
// Result, CommandResult and outputs on ec, and must observe ctx.
type Runnable interface {
	Run(ctx context.Context, ec *ExecutionContext) error
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(ctx context.Context, ec *ExecutionContext) error

// Run calls f.
func (f RunnableFunc) Run(ctx context.Context, ec *ExecutionContext) error {
	return f(ctx, ec)
}

// Resolver maps a step to the runnable that executes it.
type Resolver interface {
	Resolve(step config.StepSpec) (Runnable, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(step config.StepSpec) (Runnable, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(step config.StepSpec) (Runnable, error) {
	return f(step)
}
