package cmd

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-rag-chatbot/internal/app"
)

func newBuildIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build-index",
		Short: "Rebuild the vector index from the raw corpus",
		Long: `Loads every page, text file, PDF and slide deck in the raw corpus
directory, splits them into overlapping chunks, embeds the chunks and replaces
the vector index with the result.`,
		Args: cobra.NoArgs,
		RunE: runBuildIndexCommand,
	}
}

func runBuildIndexCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	loader, err := appInstance.CorpusLoader()
	if err != nil {
		return err
	}
	docs, err := loader.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	appInstance.Logger().Info("corpus loaded", zap.Int("documents", len(docs)))

	progress := newProgress(cmd.ErrOrStderr(), "Embedding chunks")
	builder, err := appInstance.Builder(cmd.Context(), app.ModeBuild, progress.update)
	if err != nil {
		return err
	}
	stats, err := builder.Build(cmd.Context(), docs)
	progress.finish()
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Index built: %d documents, %d chunks, %d vectors stored\n",
		stats.Documents, stats.Chunks, stats.Total)
	return nil
}

// progress renders embedding batches as a terminal bar, created once the total is known.
type progress struct {
	w    io.Writer
	desc string
	bar  *progressbar.ProgressBar
}

func newProgress(w io.Writer, desc string) *progress {
	return &progress{w: w, desc: desc}
}

func (p *progress) update(done, total int) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(p.desc),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
