package orchestrator

import (
	"fmt"
	"strings"
)

const rubricHint = `HINT:
1. Task completion (30 points)
2. Code quality (25 points)
3. Documentation (20 points)
4. Error handling (15 points)
5. Completeness (10 points)`

// buildSeedPrompt is sent to the first model of a chain of total models.
func buildSeedPrompt(task string, total int, hints bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are the first model in a chain of %d AI models working together.\n\n", total))
	sb.WriteString(fmt.Sprintf("Task: %s\n\n", task))
	sb.WriteString("Your job: Analyze this task and provide your best solution/analysis. The next model will refine your output.\n\n")
	sb.WriteString("Provide a detailed, complete response.")
	if hints {
		sb.WriteString("\n")
		sb.WriteString(rubricHint)
	}
	return sb.String()
}

// buildRefinePrompt asks model step of total to improve the carried output.
func buildRefinePrompt(step, total int, task, prevModel, carried string, hints bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are model %d in a chain of %d AI models working together.\n\n", step, total))
	sb.WriteString(fmt.Sprintf("Original Task: %s\n\n", task))
	sb.WriteString(fmt.Sprintf("Previous Model (%s) Output:\n%s\n\n", prevModel, carried))
	sb.WriteString(`Your job: Review the previous output and IMPROVE it by:
1. Fixing any errors or issues
2. Adding missing details
3. Improving clarity and quality
4. Optimizing the solution
5. Making it more complete

Provide your improved version. The next model will further refine it.`)
	if hints {
		sb.WriteString("\n")
		sb.WriteString(rubricHint)
	}
	return sb.String()
}
