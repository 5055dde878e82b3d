// Package deps enforces the production order among derived artifact kinds.
//
// The pipeline derives documents in a fixed chain:
//
//	plan -> spec -> invariants -> {tracker, cursor_rules} -> prompts
//
// Each derived kind may only read the exact upstream kinds the chain allows.
// Validation runs before any generation call and reports every violation in
// one pass, so a single correction round suffices.
package deps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/council-go/internal/models"
)

// Canonical input kind names.
const (
	InputPlan       = "plan"
	InputSpec       = "spec"
	InputInvariants = "invariants"
	InputTracker    = "tracker"
)

// allowedInputs maps each derivable task type to the exact set of upstream
// kinds it may declare. Plan is the root of the chain and is absent: it is
// produced from a free-form brief, not derived from prior artifacts.
var allowedInputs = map[models.TaskType]map[string]bool{
	models.TaskSpec: {
		InputPlan: true,
	},
	models.TaskInvariants: {
		InputSpec: true,
	},
	models.TaskTracker: {
		InputSpec:       true,
		InputInvariants: true,
	},
	models.TaskPrompts: {
		InputSpec:       true,
		InputInvariants: true,
		InputTracker:    true,
	},
	models.TaskCursorRules: {
		InputSpec:       true,
		InputInvariants: true,
	},
}

// forbiddenPatterns are rejected as inputs to every derivation. Context packs
// are ephemeral working material, and generated outputs must never be fed
// back in as inputs.
var forbiddenPatterns = []string{
	"context_pack",
	"packs/",
	".cursor/rules/",
	"prompts/step_template",
	"prompts/review_template",
	"prompts/patch_template",
	"prompts/chair_synthesis",
}

// taskForbiddenPatterns reject inputs that would skip a link in the chain,
// e.g. tracker reading the raw plan instead of the spec derived from it.
var taskForbiddenPatterns = map[models.TaskType][]string{
	models.TaskInvariants:  {InputPlan},
	models.TaskTracker:     {InputPlan, "research/"},
	models.TaskPrompts:     {InputPlan, "research/"},
	models.TaskCursorRules: {InputPlan, InputTracker, "research/"},
}

// Violation reasons.
const (
	ReasonForbidden  = "FORBIDDEN"
	ReasonNotAllowed = "NOT_ALLOWED"
)

// Violation is one rejected input.
type Violation struct {
	Input  string
	Source string
	Reason string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %q (source: %s): %s", v.Reason, v.Input, v.Source, v.Detail)
}

// Violations is the validation failure for one ValidateInputs call. It always
// carries the complete list, never just the first hit.
type Violations struct {
	TaskType models.TaskType
	Items    []Violation
}

func (e *Violations) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "artifact dependency violation for %s: %d illegal input(s)", e.TaskType, len(e.Items))
	for _, v := range e.Items {
		b.WriteString("\n  - ")
		b.WriteString(v.String())
	}
	return b.String()
}

// AllowedInputs returns the sorted allowed input kinds for a task type.
func AllowedInputs(taskType models.TaskType) ([]string, error) {
	allowed, ok := allowedInputs[taskType]
	if !ok {
		return nil, fmt.Errorf("task type %q has no dependency rules", taskType)
	}
	kinds := make([]string, 0, len(allowed))
	for k := range allowed {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds, nil
}

// Derivable reports whether a task type participates in the dependency chain
// as a derived kind.
func Derivable(taskType models.TaskType) bool {
	_, ok := allowedInputs[taskType]
	return ok
}

// ValidateInputs checks every declared input against the chain rules for the
// given task type. inputs maps a logical input kind to a human-readable
// source description used in error messages. On failure the returned error is
// a *Violations holding all offending inputs.
func ValidateInputs(taskType models.TaskType, inputs map[string]string) error {
	allowed, ok := allowedInputs[taskType]
	if !ok {
		return fmt.Errorf("task type %q has no dependency rules", taskType)
	}

	// Deterministic violation order regardless of map iteration.
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var items []Violation
	for _, name := range names {
		source := inputs[name]
		if pattern, hit := matchForbidden(taskType, name); hit {
			items = append(items, Violation{
				Input:  name,
				Source: source,
				Reason: ReasonForbidden,
				Detail: fmt.Sprintf("matches forbidden pattern %q for %s", pattern, taskType),
			})
			continue
		}
		if !allowed[name] {
			kinds, _ := AllowedInputs(taskType)
			items = append(items, Violation{
				Input:  name,
				Source: source,
				Reason: ReasonNotAllowed,
				Detail: fmt.Sprintf("allowed inputs for %s: %s", taskType, strings.Join(kinds, ", ")),
			})
		}
	}

	if len(items) > 0 {
		return &Violations{TaskType: taskType, Items: items}
	}
	return nil
}

// matchForbidden returns the first global or task-specific forbidden pattern
// the input matches.
func matchForbidden(taskType models.TaskType, input string) (string, bool) {
	for _, pattern := range forbiddenPatterns {
		if strings.Contains(input, pattern) {
			return pattern, true
		}
	}
	for _, pattern := range taskForbiddenPatterns[taskType] {
		if strings.Contains(input, pattern) || input == pattern {
			return pattern, true
		}
	}
	return "", false
}
