package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mediaforge/mediaforge/pkg/config"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mediaforge",
	Short: "Media-processing orchestration engine",
	Long:  `mediaforge schedules media-processing work across interchangeable processor backends: concurrency-bounded admission with FIFO queueing, weighted multi-stage progress tracking, result caching, and memory-pressure response.`,
}

// Execute adds all child commands to the root command and runs it
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults plus MEDIAFORGE_* env when omitted)")
}

func loadConfig() (config.Config, error) {
	return config.Load(cfgFile)
}
