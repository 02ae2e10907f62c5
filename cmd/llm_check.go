package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLLMCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "llm-check",
		Short: "Send a greeting to the language model and print its reply",
		Args:  cobra.NoArgs,
		RunE:  runLLMCheckCommand,
	}
}

func runLLMCheckCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	generator, err := appInstance.Generator()
	if err != nil {
		return err
	}
	prompt := fmt.Sprintf("Hello! Can you give me a short introduction about %s?", appInstance.Config().Assistant.Name)
	reply, err := generator.Generate(cmd.Context(), prompt)
	if err != nil {
		return fmt.Errorf("llm check: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Model %s replied:\n%s\n", generator.Model(), reply)
	return nil
}
