package cli

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/formsage/formsage/internal/core/ports/driving"
)

var (
	ingestWait       bool
	ingestFilingYear int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file | document-id>",
	Short: "Register and ingest a document",
	Long: `Ingests a document. Given a local file path, the file is copied into
the object store, registered and ingested. Given the ID of an already
registered document, ingestion is (re-)triggered for it.

Ingestion runs in the background; with --wait the command polls the
document status until the run finishes.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestWait, "wait", false, "wait for the ingestion run to finish")
	ingestCmd.Flags().IntVar(&ingestFilingYear, "filing-year", 0, "filing year to tag the document with")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
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

	documentID := args[0]
	if info, statErr := os.Stat(args[0]); statErr == nil && !info.IsDir() {
		documentID, err = a.registerFile(ctx, args[0])
		if err != nil {
			return err
		}
		cmd.Printf("Registered %s as document %s\n", filepath.Base(args[0]), documentID)
	}

	result, err := a.ingestion.Start(ctx, documentID)
	if err != nil {
		return fmt.Errorf("trigger ingestion: %w", err)
	}

	cmd.Printf("Document %s: %s\n", documentID, result)
	if result == driving.TriggerAlreadyProcessing && !ingestWait {
		return nil
	}

	if ingestWait {
		status, err := a.waitForStatus(ctx, documentID, 500*time.Millisecond)
		if err != nil {
			return fmt.Errorf("ingestion ended with status %s: %w", status, err)
		}
		cmd.Printf("Document %s: %s\n", documentID, status)
	}

	return nil
}

// registerFile copies a local file into the object store root and
// registers it as a pending document.
func (a *app) registerFile(ctx context.Context, path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("reading file info: %w", err)
	}

	name := filepath.Base(path)
	ref := filepath.ToSlash(filepath.Join("uploads", uuid.New().String()+"-"+name))
	target := filepath.Join(a.cfg.Objects.Dir, filepath.FromSlash(ref))

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("creating object: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("copying object: %w", err)
	}

	doc, err := a.documents.Register(ctx, driving.RegisterDocumentRequest{
		Filename:   name,
		StorageRef: ref,
		MimeType:   mimeTypeFor(name),
		SizeBytes:  info.Size(),
		FilingYear: ingestFilingYear,
	})
	if err != nil {
		return "", fmt.Errorf("registering document: %w", err)
	}
	return doc.ID, nil
}

// mimeTypeFor guesses a content type from the filename extension.
func mimeTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	}
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
