package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var documentsFilingYear int

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List registered documents",
	RunE:  runDocuments,
}

func init() {
	documentsCmd.Flags().IntVar(&documentsFilingYear, "filing-year", 0, "filter by filing year")
	rootCmd.AddCommand(documentsCmd)
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.documents.List(ctx, documentsFilingYear)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents registered.")
		return nil
	}

	for _, doc := range docs {
		line := fmt.Sprintf("%s  %-12s  %s", doc.ID, doc.IngestStatus, doc.Filename)
		if doc.FilingYear != 0 {
			line += fmt.Sprintf("  (%d)", doc.FilingYear)
		}
		cmd.Println(line)
	}
	return nil
}
