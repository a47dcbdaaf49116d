package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perbu/promptforge/pkg/config"
	"github.com/perbu/promptforge/pkg/corpus"
	"github.com/perbu/promptforge/pkg/embedder"
	"github.com/perbu/promptforge/pkg/forge"
	"github.com/perbu/promptforge/pkg/index"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	out        string
	corpus     string
	provider   string
	model      string
	dimensions int
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Embed the example corpus and write the retrieval index",
		Long: `build-index embeds every prompt in the example corpus with the configured
embedder and writes the flat index artifact that promptforge loads at start.
Rebuild it whenever the corpus or the embedding model changes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", config.DefaultPath, "config file")
	f.StringVarP(&opts.out, "out", "o", "", "index output path (default from config)")
	f.StringVar(&opts.corpus, "corpus", "", "corpus YAML file (default: built-in corpus)")
	f.StringVar(&opts.provider, "provider", "", "embedding provider: ollama, openai, genai or hash")
	f.StringVar(&opts.model, "model", "", "embedding model")
	f.IntVar(&opts.dimensions, "dimensions", 0, "embedding dimensions")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, w io.Writer) error {
	fmt.Fprintln(w, "PromptForge Index Builder")
	fmt.Fprintln(w, "=========================")
	fmt.Fprintln(w)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.out != "" {
		cfg.Index.Path = opts.out
	}
	if opts.corpus != "" {
		cfg.Index.Corpus = opts.corpus
	}
	if opts.provider != "" {
		cfg.Embedding.Provider = opts.provider
		cfg.Embedding.Model = opts.model
	} else if opts.model != "" {
		cfg.Embedding.Model = opts.model
	}
	if opts.dimensions > 0 {
		cfg.Embedding.Dimensions = opts.dimensions
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Fprintln(w, "Step 1: Loading corpus...")
	records, err := forge.LoadCorpus(cfg.Index.Corpus)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	fmt.Fprintf(w, "  ✓ Loaded %d records (fingerprint %016x)\n\n", len(records), corpus.Fingerprint(records))

	fmt.Fprintln(w, "Step 2: Initializing embedder...")
	emb, err := embedder.New(ctx, cfg.Embedding)
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}
	if c, ok := emb.(io.Closer); ok {
		defer c.Close()
	}
	fmt.Fprintf(w, "  ✓ Embedder initialized (%s, dim=%d)\n\n", emb.ModelInfo(), emb.Dimension())

	fmt.Fprintln(w, "Step 3: Generating embeddings...")
	start := time.Now()
	idx, err := index.Build(ctx, records, emb)
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	fmt.Fprintf(w, "  ✓ Embedded %d prompts in %s\n\n", idx.Size(), time.Since(start).Round(time.Millisecond))

	fmt.Fprintln(w, "Step 4: Saving index...")
	if err := index.Save(cfg.Index.Path, idx); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	info, err := os.Stat(cfg.Index.Path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ Saved to %s (%.1f KB)\n\n", cfg.Index.Path, float64(info.Size())/1024)

	fmt.Fprintln(w, "Done! The index is ready for use.")
	return nil
}
