// Package llm performs single generation calls against hosted models.
package llm

import "context"

// Result is the normalized outcome of one generation call. A failed call
// carries an empty Output and the stringified failure in Error.
type Result struct {
	Model   string `json:"model"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Invoker sends exactly one prompt to the named model. Implementations never
// return failures out of band: every error is encoded in the Result.
type Invoker interface {
	Generate(ctx context.Context, model, prompt, apiKey string) Result
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, model, prompt, apiKey string) Result

func (f InvokerFunc) Generate(ctx context.Context, model, prompt, apiKey string) Result {
	return f(ctx, model, prompt, apiKey)
}

// Failure builds the Result for a call that did not produce text.
func Failure(model string, err error) Result {
	return Result{Model: model, Success: false, Error: err.Error()}
}
