package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/edgehook/prerender"
	"github.com/jmcleod/edgehook/version"
)

var (
	outDir      string
	entries     []string
	noCrawl     bool
	concurrency int
)

var prerenderCmd = &cobra.Command{
	Use:   "prerender",
	Short: "Export the site to a directory of static files",
	Long: `Requests every entry page through the same handler chain the server
uses and writes the responses to the output directory, following same-site
links. A missing /favicon.png is tolerated; any other error response fails
the export.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServerFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err := newLogger(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		rev, err := version.Revision(cmd.Context())
		if err != nil {
			logger.Warn("exporting without a version tag", slog.Any("error", err))
		}

		handler, err := newRouter(cfg, logger, routerOptions{revision: rev})
		if err != nil {
			return err
		}

		if rev != "" {
			entries = append(entries, "/_app/version.json")
		}
		res, err := prerender.Render(cmd.Context(), handler, prerender.Options{
			Entries:     entries,
			OutDir:      outDir,
			Crawl:       !noCrawl,
			Concurrency: concurrency,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Prerendered %d files to %s (%d skipped)\n", len(res.Written), outDir, len(res.Skipped))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prerenderCmd)
	prerenderCmd.Flags().StringVarP(&outDir, "out", "o", "build", "Output directory")
	prerenderCmd.Flags().StringSliceVar(&entries, "entry", []string{"/"}, "Entry path to start from (repeatable)")
	prerenderCmd.Flags().BoolVar(&noCrawl, "no-crawl", false, "Only render the entry paths")
	prerenderCmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum concurrent page renders")
	prerenderCmd.Flags().StringVar(&assetsDir, "assets", "public", "Directory holding the built site")
	prerenderCmd.Flags().BoolVar(&noCompress, "no-compress", false, "Disable gzip compression")
}
