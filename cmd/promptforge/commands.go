package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/perbu/promptforge/pkg/corpus"
	"github.com/perbu/promptforge/pkg/forge"
	"github.com/perbu/promptforge/pkg/refiner"
	"github.com/spf13/cobra"
)

var stepLabels = map[forge.State]string{
	forge.Retrieving:         "Retrieving relevant examples (RAG)...",
	forge.Refining:           "Refining the prompt...",
	forge.GeneratingOriginal: "Generating response with original prompt...",
	forge.GeneratingRefined:  "Generating response with refined prompt...",
	forge.Evaluating:         "Evaluating outputs...",
}

var separator = strings.Repeat("-", 80)

var (
	strategyLabel string
	k             int
	parallel      bool
	jsonOutput    bool
	showExamples  bool
	noRetrieve    bool
	showPersona   bool

	evalPrompt   string
	evalOriginal string
	evalRefined  string
)

func init() {
	forgeCmd.Flags().StringVarP(&strategyLabel, "strategy", "s", string(corpus.CreativeWriting), "refinement strategy")
	forgeCmd.Flags().IntVar(&k, "k", 0, "number of examples to retrieve (default from config)")
	forgeCmd.Flags().BoolVar(&parallel, "parallel", false, "generate both answers concurrently")
	forgeCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run as JSON")
	forgeCmd.Flags().BoolVar(&showExamples, "examples", false, "print the retrieved examples")

	retrieveCmd.Flags().IntVar(&k, "k", 0, "number of examples to retrieve (default from config)")

	refineCmd.Flags().StringVarP(&strategyLabel, "strategy", "s", string(corpus.CreativeWriting), "refinement strategy")
	refineCmd.Flags().IntVar(&k, "k", 0, "number of examples to retrieve (default from config)")
	refineCmd.Flags().BoolVar(&noRetrieve, "no-retrieve", false, "refine without retrieved examples")

	evaluateCmd.Flags().StringVar(&evalPrompt, "prompt", "", "the user's original request")
	evaluateCmd.Flags().StringVar(&evalOriginal, "original", "", "response to the original prompt")
	evaluateCmd.Flags().StringVar(&evalRefined, "refined", "", "response to the refined prompt")
	_ = evaluateCmd.MarkFlagRequired("prompt")
	_ = evaluateCmd.MarkFlagRequired("original")
	_ = evaluateCmd.MarkFlagRequired("refined")

	strategiesCmd.Flags().BoolVar(&showPersona, "instructions", false, "print each strategy's instruction")
}

func retrievalK() int {
	if k > 0 {
		return k
	}
	return cfg.Retrieval.K
}

var forgeCmd = &cobra.Command{
	Use:   "forge <prompt>",
	Short: "Refine a prompt, answer both versions and score them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, err := corpus.ParseStrategy(strategyLabel)
		if err != nil {
			return fmt.Errorf("%w (available: %s)", err, strategyList())
		}
		cfg.Retrieval.K = retrievalK()
		if parallel {
			cfg.Pipeline.Parallel = true
		}

		eng, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		stderr := cmd.ErrOrStderr()
		p := eng.WithObserver(func(s forge.State) {
			if label, ok := stepLabels[s]; ok {
				fmt.Fprintf(stderr, "Step %d/%d: %s\n", s.Step(), forge.Steps, label)
			}
		})

		run, err := p.Run(cmd.Context(), forge.Input{Prompt: strings.Join(args, " "), Strategy: strategy}, nil)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printRunJSON(cmd.OutOrStdout(), run)
		}
		printRun(cmd.OutOrStdout(), run)
		return nil
	},
}

func printRun(w io.Writer, run *forge.Run) {
	fmt.Fprintln(w)
	for _, d := range run.Degradations {
		fmt.Fprintf(w, "⚠ %s degraded: %v\n", d.Stage, d.Err)
	}
	if len(run.Degradations) > 0 {
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Strategy: %s\n\n", run.Strategy)
	fmt.Fprintf(w, "Refined prompt:\n%s\n\n%s\n\n", run.RefinedPrompt, separator)
	fmt.Fprintf(w, "Original output (score %d):\n%s\n\n%s\n\n", run.OriginalScore, run.OriginalOutput, separator)
	fmt.Fprintf(w, "Refined output (score %d):\n%s\n\n%s\n\n", run.RefinedScore, run.RefinedOutput, separator)
	fmt.Fprintf(w, "Quality uplift: %+d\n", run.Uplift())

	if showExamples {
		fmt.Fprintln(w)
		printExamples(w, run.Examples)
	}
}

func printRunJSON(w io.Writer, run *forge.Run) error {
	type degradation struct {
		Stage string `json:"stage"`
		Error string `json:"error"`
	}
	out := struct {
		*forge.Run
		Uplift       int           `json:"Uplift"`
		Degradations []degradation `json:"Degradations"`
	}{Run: run, Uplift: run.Uplift(), Degradations: []degradation{}}
	for _, d := range run.Degradations {
		out.Degradations = append(out.Degradations, degradation{Stage: d.Stage.String(), Error: d.Err.Error()})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printExamples(w io.Writer, examples []string) {
	if len(examples) == 0 {
		fmt.Fprintln(w, "No specific examples were used from the knowledge base for refinement.")
		return
	}
	fmt.Fprintf(w, "Found %d examples:\n\n", len(examples))
	for i, ex := range examples {
		fmt.Fprintf(w, "Example %d\n%s", i+1, ex)
		if i < len(examples)-1 {
			fmt.Fprintln(w, "\n"+separator+"\n")
		}
	}
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Show the corpus examples nearest to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		printExamples(cmd.OutOrStdout(), eng.RetrieveRelevantExamples(cmd.Context(), strings.Join(args, " "), retrievalK()))
		return nil
	},
}

var refineCmd = &cobra.Command{
	Use:   "refine <prompt>",
	Short: "Rewrite a prompt with a refinement strategy",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strategy, err := corpus.ParseStrategy(strategyLabel)
		if err != nil {
			return fmt.Errorf("%w (available: %s)", err, strategyList())
		}
		instruction, err := refiner.Instruction(strategy)
		if err != nil {
			return err
		}

		eng, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		prompt := strings.Join(args, " ")
		var examples []string
		if !noRetrieve {
			examples = eng.RetrieveRelevantExamples(cmd.Context(), prompt, retrievalK())
		}
		fmt.Fprintln(cmd.OutOrStdout(), eng.RefinePrompt(cmd.Context(), prompt, instruction, refiner.JoinExamples(examples)))
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Answer a prompt with the configured LLM",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		fmt.Fprintln(cmd.OutOrStdout(), eng.LLMResponse(cmd.Context(), strings.Join(args, " ")))
		return nil
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score two responses to the same request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		scores := eng.EvaluateOutputs(cmd.Context(), evalOriginal, evalRefined, evalPrompt)
		fmt.Fprintf(cmd.OutOrStdout(), "Original score: %d\nRefined score:  %d\nUplift:         %+d\n",
			scores.Original, scores.Refined, scores.Refined-scores.Original)
		return nil
	},
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the refinement strategies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		for _, s := range corpus.Strategies() {
			fmt.Fprintln(w, s)
			if showPersona {
				instruction, _ := refiner.Instruction(s)
				fmt.Fprintf(w, "\n%s\n\n%s\n", instruction, separator)
			}
		}
	},
}

func strategyList() string {
	names := make([]string, 0, len(corpus.Strategies()))
	for _, s := range corpus.Strategies() {
		names = append(names, fmt.Sprintf("%q", s))
	}
	return strings.Join(names, ", ")
}
