package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/pdf-insight/internal/config"
	"github.com/spherical/pdf-insight/internal/llm"
	"github.com/spherical/pdf-insight/internal/observability"
	"github.com/spherical/pdf-insight/internal/pdf"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "pdf-insight",
	Short: "PDF Insight Extractor - ask questions about PDF documents",
	Long: `PDF Insight Extractor renders every page of a PDF to an image and sends
the pages together with your question to a multimodal chat model, so answers
can draw on text, images, and tables alike.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		InitUI(noColor)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default $CONFIG_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration, raising the log level under --verbose.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Observability.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) *observability.Logger {
	if out == nil {
		out = os.Stdout
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		Output:      out,
		ServiceName: "pdf-insight",
	})
}

func newRasterizer(cfg *config.Config, logger *observability.Logger) (*pdf.Rasterizer, error) {
	return pdf.NewRasterizer(logger, pdf.Options{
		DPI:         cfg.PDF.DPI,
		Format:      cfg.PDF.Format,
		JPEGQuality: cfg.PDF.JPEGQuality,
		Preflight:   cfg.PDF.Preflight,
	})
}

func newModelClient(cfg *config.Config, logger *observability.Logger) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	}, logger)
}
