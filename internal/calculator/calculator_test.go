package calculator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"2+2":           "4",
		"(3 + 4) * 5":   "35",
		"7 % 3":         "1",
		"1.5 * 2":       "3",
		"math.Sqrt(16)": "4",
	}
	for expr, want := range cases {
		assert.Equal(t, want, Evaluate(context.Background(), expr), expr)
	}
}

func TestEvaluateReportsErrors(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"", "2 +", "undefinedName", "1/0"} {
		got := Evaluate(context.Background(), expr)
		assert.True(t, strings.HasPrefix(got, "Error: "), "%q -> %q", expr, got)
	}
}

func TestEvalRejectsOtherImports(t *testing.T) {
	t.Parallel()

	_, err := Eval(context.Background(), `import "os"`)
	assert.Error(t, err)
}
