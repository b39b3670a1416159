package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf-insight/internal/domain"
)

var askCmd = &cobra.Command{
	Use:   "ask <pdf-file> <question>",
	Short: "Ask one question about a PDF from the terminal",
	Example: `  pdf-insight ask brochure.pdf "What data is presented in the table on page 2?"
  pdf-insight ask --verbose report.pdf Summarize the conclusions`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	pdfPath := args[0]
	query := strings.TrimSpace(strings.Join(args[1:], " "))
	if query == "" {
		return domain.ErrEmptyQuery
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !verbose {
		cfg.Observability.LogLevel = "warn"
	}
	cfg.Observability.LogFormat = "console"
	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := NewPrinter()

	rasterizer, err := newRasterizer(cfg, logger)
	if err != nil {
		return err
	}

	var bar *ProgressBar
	rasterizer.OnPage = func(done, total int) {
		if bar == nil {
			bar = NewProgressBar(int64(total), "Rendering pages")
		}
		bar.Set(int64(done))
	}

	start := time.Now()
	images, err := rasterizer.Rasterize(ctx, pdfPath)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		printer.Error("Failed to process %s", filepath.Base(pdfPath))
		return err
	}
	printer.Success("Processed %d page(s) in %v", images.Len(), time.Since(start).Round(time.Millisecond))

	client := newModelClient(cfg, logger)

	spin := NewSpinner(fmt.Sprintf("Querying %s, please wait...", client.Model()))
	spin.Start()
	answer, err := client.Query(ctx, images, query)
	spin.Stop()
	if err != nil {
		printer.Error("Query failed")
		return err
	}

	printer.Section("Model's Response")
	printer.Body(answer)
	return nil
}
