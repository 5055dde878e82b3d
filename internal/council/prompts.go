package council

import (
	"fmt"

	"github.com/raphaelgruber/council-go/internal/models"
)

// taskGuidance describes what each task type's document must contain. It is
// appended to the drafter and chair system prompts.
var taskGuidance = map[models.TaskType]string{
	models.TaskPlan: `Produce a product plan: goals, target users, scoped feature list,
explicit non-goals, and known risks. Prefer cutting scope over vague commitments.`,
	models.TaskSpec: `Produce a structured requirements specification derived strictly from
the plan in the packet. Number requirements, state acceptance criteria, and
mark anything the plan leaves ambiguous as an open question.`,
	models.TaskInvariants: `Produce a list of system invariants derived strictly from the spec
in the packet. Each invariant must be checkable, name the component it
constrains, and cite the spec requirement it protects.`,
	models.TaskTracker: `Produce an ordered implementation tracker derived from the spec and
invariants in the packet. Each step must be small, verifiable, and respect
every invariant. Never reference the raw plan.`,
	models.TaskPrompts: `Produce execution prompt templates for working through the tracker
steps: one step template, one review template, one patch template. Ground
every template in the spec, invariants, and tracker from the packet.`,
	models.TaskCursorRules: `Produce IDE guidance rules derived from the spec and invariants in
the packet: concrete do/don't rules an editor assistant can enforce while
code is written.`,
}

func draftSystemPrompt(taskType models.TaskType) string {
	return fmt.Sprintf(`You are one member of a drafting council. Write a complete, standalone
draft of the requested document based only on the input packet.

%s

Output only the document, no preamble.`, taskGuidance[taskType])
}

const critiqueSystemPrompt = `You are reviewing the drafts of a drafting council. For each draft,
list concrete problems: contradictions with the input packet, missing
requirements, unverifiable claims, and scope creep. Be specific and cite the
draft you mean. Do not rewrite the drafts.`

func chairSystemPrompt(taskType models.TaskType) string {
	return fmt.Sprintf(`You chair a drafting council. Merge the drafts into one final document,
resolving every problem the critiques raise. Where drafts disagree, pick the
option best supported by the input packet and say nothing about the
disagreement in the output.

%s

Output only the final document, no preamble.`, taskGuidance[taskType])
}
