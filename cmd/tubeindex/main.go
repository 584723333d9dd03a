package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tubeindex",
		Short:         "Incrementally ingest YouTube search results into a vector store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(ingestCmd())
	root.AddCommand(runCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(videosCmd())
	root.AddCommand(channelsCmd())

	return root
}

func ingestCmd() *cobra.Command {
	var (
		query      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), query, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "search query (default: from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the cycle report as JSON")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server without the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func videosCmd() *cobra.Command {
	var (
		channel    string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "videos",
		Short: "List stored videos, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVideos(cmd.Context(), channel, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "only videos from this channel ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "max videos to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func channelsCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List stored channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannels(cmd.Context(), limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "max channels to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
