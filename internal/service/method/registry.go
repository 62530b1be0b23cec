package method

import (
	"fmt"
	"log"
)

// EvalError records a method that panicked or errored during evaluation.
// One broken method never aborts a cycle; the engine stores these in its
// run details.
type EvalError struct {
	Method string
	Err    error
}

// Registry holds registered methods in insertion order.
type Registry struct {
	order   []string
	methods map[string]Method
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: map[string]Method{}}
}

// Register adds a method. A method with the same name is overwritten in
// place, keeping its original position.
func (r *Registry) Register(m Method) {
	if _, exists := r.methods[m.Name()]; !exists {
		r.order = append(r.order, m.Name())
	}
	r.methods[m.Name()] = m
}

// Get returns the method with the given name.
func (r *Registry) Get(name string) (Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// List returns all methods in registration order.
func (r *Registry) List() []Method {
	out := make([]Method, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.methods[name])
	}
	return out
}

// EvaluateAll runs every registered method against the context. Methods
// whose preconditions fail are skipped silently; methods that error or
// panic are trapped and reported without stopping the others.
func (r *Registry) EvaluateAll(mctx *Context) ([]*Evaluation, []EvalError) {
	var evaluations []*Evaluation
	var evalErrors []EvalError

	for _, name := range r.order {
		m := r.methods[name]

		ok, reason := m.CheckPreconditions(mctx)
		if !ok {
			log.Printf("[method.Registry] %s skipped: %s", name, reason)
			continue
		}

		evaluation, err := safeEvaluate(m, mctx)
		if err != nil {
			evalErrors = append(evalErrors, EvalError{Method: name, Err: err})
			continue
		}
		if evaluation != nil {
			evaluations = append(evaluations, evaluation)
		}
	}

	return evaluations, evalErrors
}

func safeEvaluate(m Method, mctx *Context) (evaluation *Evaluation, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			evaluation = nil
			err = fmt.Errorf("method %s panicked: %v", m.Name(), rec)
		}
	}()
	return m.Evaluate(mctx)
}

// NewDefaultRegistry returns a registry with the three built-in methods.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewCPASpike())
	r.Register(NewBudgetReallocation())
	r.Register(NewCreativeFatigue())
	return r
}
