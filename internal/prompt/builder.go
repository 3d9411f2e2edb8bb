// Package prompt assembles provider-ready prompt text from the tutoring
// request: base system instructions, the current problem context, and a
// bounded window of prior conversation turns. Everything here is a pure
// function of its inputs.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mathtutor/chat-gateway/internal/chat"
)

// DefaultSystemPrompt is used when the deployment does not configure its own
// instructions.
const DefaultSystemPrompt = `You are a patient university-level math tutor. ` +
	`Guide the student toward the answer step by step instead of handing it over. ` +
	`Use LaTeX notation for mathematical expressions. ` +
	`When a reference solution is available, use it to check the student's work, ` +
	`but never reveal it outright.`

// GraphInstructions is appended to the system prompt when the student asks
// for a visual answer. The coordinate data must be pre-evaluated numbers so
// the client can hand it straight to the plotting layer.
const GraphInstructions = `

When the student asks for a graph or plot, include a fenced json block with the shape
{"graph": {"points": [[x, y], ...], "xLabel": string, "yLabel": string}}.
Every coordinate must be a fully evaluated number; never emit symbolic expressions
such as "pi/2" or "sqrt(2)" inside the points array. Provide at least 30 points so
the curve renders smoothly.`

var graphPattern = regexp.MustCompile(`(?i)\b(graph|plot|sketch|draw|visuali[sz]e)\b`)

// WantsGraph reports whether the student's message asks for a visual answer.
func WantsGraph(message string) bool {
	return graphPattern.MatchString(message)
}

// WithGraphInstructions appends the strict numeric-output graphing rules.
func WithGraphInstructions(systemPrompt string) string {
	return systemPrompt + GraphInstructions
}

// BuildSystemPrompt returns the base instructions, optionally enriched with
// the problem the student is working on. Sections are appended in a fixed
// order: problem, sub-parts in their given order, then solutions. With no
// problem context the base instructions are returned verbatim.
func BuildSystemPrompt(base string, pc *chat.ProblemContext) string {
	if pc == nil {
		return base
	}

	var b strings.Builder

	b.WriteString(base)

	b.WriteString("\n\n--- Current Problem ---\n")
	b.WriteString(pc.ProblemText)

	if len(pc.Subproblems) > 0 {
		b.WriteString("\n\n--- Sub-parts ---")

		for _, sp := range pc.Subproblems {
			fmt.Fprintf(&b, "\n(%s) %s", sp.Label, sp.Text)
		}
	}

	if len(pc.Solutions) > 0 || len(pc.SubproblemSolutions) > 0 {
		b.WriteString("\n\n--- Reference Solutions ---")

		for _, sol := range pc.Solutions {
			if sol.Label != "" {
				fmt.Fprintf(&b, "\n(%s) %s", sol.Label, sol.Text)
			} else {
				fmt.Fprintf(&b, "\n%s", sol.Text)
			}
		}

		// Keyed solutions follow the sub-part order so the section is stable.
		for _, sp := range pc.Subproblems {
			if sol, ok := pc.SubproblemSolutions[sp.Label]; ok {
				fmt.Fprintf(&b, "\n(%s) %s", sp.Label, sol)
			}
		}
	}

	return b.String()
}
