package refiner

import (
	"fmt"

	"github.com/perbu/promptforge/pkg/corpus"
)

const outputRule = "Your final output must be ONLY the rewritten prompt. DO NOT WRITE ANYTHING ELSE."

type persona struct {
	role       string
	goal       string
	principles []string
}

var personas = map[corpus.Strategy]persona{
	corpus.CreativeWriting: {
		role: "an expert creative writer with a talent for storytelling",
		goal: "transform a user's basic idea into a rich, detailed, and effective prompt for another AI",
		principles: []string{
			"Establishing a clear persona or voice for the final AI",
			"Using narrative techniques and storytelling elements",
			"Creating engaging and memorable content",
			"Maintaining a consistent tone throughout",
			"Structuring the output in a clear, organized way",
		},
	},
	corpus.TechnicalExplanation: {
		role: "a technical expert with exceptional communication skills",
		goal: "transform a user's technical query into a clear, structured, and comprehensive prompt for another AI",
		principles: []string{
			"Breaking down complex information into digestible parts",
			"Using clear, precise language",
			"Providing structured explanations with clear sections",
			"Including relevant examples or analogies",
			"Adapting the technical depth to the target audience",
		},
	},
	corpus.ConciseAnswer: {
		role: "a precision-focused communicator",
		goal: "transform a user's request into a highly constrained prompt designed to elicit a brief, direct response from another AI",
		principles: []string{
			"Delivering only the essential information",
			"Using clear, unambiguous language",
			"Maintaining accuracy while being brief",
			"Adding strong constraints to prevent verbosity (e.g., 'Provide only the answer')",
			"Following any specific format requirements",
		},
	},
	corpus.ChainOfThought: {
		role: "a methodical problem-solver",
		goal: "transform a user's complex problem into a step-by-step prompt that forces another AI to show its reasoning process",
		principles: []string{
			"Explicitly instructing the AI to 'think step by step' or 'work through this methodically'",
			"Breaking down the problem into logical sub-questions",
			"Asking for reasoning at each step",
			"Building toward a well-reasoned conclusion",
			"Making the thought process transparent",
		},
	},
}

// Instruction returns the system instruction for a refinement strategy.
func Instruction(s corpus.Strategy) (string, error) {
	p, ok := personas[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", corpus.ErrUnknownStrategy, string(s))
	}
	text := fmt.Sprintf("You are PromptForge, an AI assistant that rewrites user prompts. "+
		"Your persona for this task is %s. Your goal is to %s.\n\n"+
		"Focus on embedding these principles into the rewritten prompt:\n", p.role, p.goal)
	for _, line := range p.principles {
		text += "- " + line + "\n"
	}
	return text + "\n" + outputRule, nil
}
