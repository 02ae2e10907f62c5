package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/campus-rag-chatbot/internal/app"
	"github.com/JakeFAU/campus-rag-chatbot/internal/document"
	"github.com/JakeFAU/campus-rag-chatbot/internal/vectorstore"
)

func newAddDocumentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-document <file>",
		Short: "Append a PDF or text file to the existing vector index",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddDocumentCommand,
	}
}

func runAddDocumentCommand(cmd *cobra.Command, args []string) error {
	path := args[0]
	if err := document.CheckAddable(path); err != nil {
		return err
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	docs, err := document.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	progress := newProgress(cmd.ErrOrStderr(), "Embedding chunks")
	builder, err := appInstance.Builder(cmd.Context(), app.ModeUpdate, progress.update)
	if err != nil {
		return err
	}
	stats, err := builder.Update(cmd.Context(), docs)
	progress.finish()
	if errors.Is(err, vectorstore.ErrNotFound) {
		return fmt.Errorf("no vector index found, run build-index first: %w", err)
	}
	if err != nil {
		return fmt.Errorf("update index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %d chunks added, %d skipped, %d vectors stored\n",
		path, stats.Added, stats.Skipped, stats.Total)
	return nil
}
