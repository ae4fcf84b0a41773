package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bytesec/byte/internal/app"
	"github.com/bytesec/byte/internal/config"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load documents into the security knowledge base",
	Long: `Ingest reads one or more text files, splits them into overlapping
chunks, embeds each chunk, and stores the vectors for similarity search.
The assistant consults this knowledge base through its security_kb_query
capability.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, paths []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, newLogger())
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer a.Close()

	kb := a.Knowledge()
	total := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		source := filepath.Base(path)
		n, err := kb.Ingest(ctx, source, string(data))
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", source, n)
		total += n
	}

	count, err := kb.Count(ctx)
	if err != nil {
		return fmt.Errorf("count knowledge base: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ingested %d chunks, knowledge base now holds %d\n", total, count)
	return nil
}
