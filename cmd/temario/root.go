package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/temario/internal/api"
	"github.com/jackzampolin/temario/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "temario",
	Short: "Turn law study material into a thematic structure",
	Long: `temario ingests law study documents (PDFs, scans, images) into subject
areas and turns them into a reviewed, ordered theme structure.

The pipeline includes:
  - OCR extraction through rotating API keys
  - LLM analysis proposing themes and subtopics with page ranges
  - Normalization and commit of the structure as topics
  - Batch jobs for cover images and text generation`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.temario/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "temario home directory (default: ~/.temario)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
