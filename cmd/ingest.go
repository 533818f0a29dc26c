package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/erasmolabs/erasmo/internal/extract"
)

var (
	ingestNamespace string
	ingestName      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|url]...",
	Short: "Add documents to the knowledge base",
	Long: `Ingest one or more sources into the knowledge base. Sources can be
plain text files, HTML files or http(s) URLs; HTML is reduced to its
readable text before chunking.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestNamespace, "namespace", "", "knowledge namespace (default from config)")
	ingestCmd.Flags().StringVar(&ingestName, "name", "", "source name override (single source only)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestName != "" && len(args) > 1 {
		return fmt.Errorf("--name applies to a single source, got %d", len(args))
	}

	ctx := context.Background()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	for _, source := range args {
		name, text, err := readSource(ctx, source)
		if err != nil {
			return fmt.Errorf("reading %s: %w", source, err)
		}
		if ingestName != "" {
			name = ingestName
		}

		doc, err := a.Advisor.Ingest(ctx, ingestNamespace, name, text)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", source, err)
		}
		cmd.Printf("ingested %s as document %s (namespace %s)\n", source, doc.ID, doc.Namespace)
	}
	return nil
}

// readSource loads a file or URL and returns a source name plus plain text.
func readSource(ctx context.Context, source string) (name, text string, err error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetchURL(ctx, source)
	}

	f, err := os.Open(source)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = f.Close() }()

	name = filepath.Base(source)
	switch strings.ToLower(filepath.Ext(source)) {
	case ".html", ".htm":
		result, err := extract.FromHTML(f, "")
		if err != nil {
			return "", "", err
		}
		if result.Title != "" {
			name = result.Title
		}
		return name, result.Text, nil
	default:
		data, err := io.ReadAll(f)
		if err != nil {
			return "", "", err
		}
		return name, string(data), nil
	}
}

func fetchURL(ctx context.Context, pageURL string) (name, text string, err error) {
	client := &http.Client{Timeout: 30 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	result, err := extract.FromHTML(resp.Body, pageURL)
	if err != nil {
		return "", "", err
	}
	name = result.Title
	if name == "" {
		name = pageURL
	}
	return name, result.Text, nil
}
