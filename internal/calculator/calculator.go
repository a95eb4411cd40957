// Package calculator evaluates arithmetic expressions for the demo MCP server.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 2 * time.Second

var errEmpty = errors.New("empty expression")

// Eval evaluates a Go expression. Only the math package is importable, and it
// is imported up front so expressions such as "math.Sqrt(2)" work.
func Eval(ctx context.Context, expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errEmpty
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	i := interp.New(interp.Options{})
	if err := i.Use(interp.Exports{"math/math": stdlib.Symbols["math/math"]}); err != nil {
		return nil, err
	}
	if _, err := i.EvalWithContext(ctx, `import "math"`); err != nil {
		return nil, err
	}
	v, err := i.EvalWithContext(ctx, expr)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() || (v.Kind() == reflect.Func) {
		return nil, fmt.Errorf("%q is not a value", expr)
	}
	return v.Interface(), nil
}

// Evaluate returns the textual result of expr, or "Error: <reason>" when it
// cannot be evaluated.
func Evaluate(ctx context.Context, expr string) string {
	v, err := Eval(ctx, expr)
	if err != nil {
		return "Error: " + err.Error()
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
