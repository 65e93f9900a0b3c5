package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coursematch/src/fsutil"
	"coursematch/src/log"
	"coursematch/src/scrape"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Download program pages listed in a spreadsheet as PDFs",
	Long: `The scrape command reads URLs from the first column of the first sheet of an Excel file,
fetches each page and writes its text into a PDF named after the page's first heading.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().String("urls", "", "Excel file with one URL per row (default scrape.urls)")
	scrapeCmd.Flags().String("out", "", "output directory (default scrape.out)")
	scrapeCmd.Flags().Int("concurrency", 0, "parallel downloads (default scrape.concurrency)")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	urlFile := flagOrConfig(cmd, "urls", "scrape.urls")
	concurrency := viper.GetInt("scrape.concurrency")
	if cmd.Flags().Changed("concurrency") {
		concurrency, _ = cmd.Flags().GetInt("concurrency")
	}

	urls, err := scrape.ReadURLs(urlFile)
	if err != nil {
		return err
	}
	log.Info("urls loaded", "file", urlFile, "count", len(urls))

	bar := progressbar.Default(int64(len(urls)), "scraping")
	s := scrape.New(fsutil.NewLocalFileStore(), scrape.Config{
		OutputDir:   flagOrConfig(cmd, "out", "scrape.out"),
		Concurrency: concurrency,
		Timeout:     viper.GetDuration("scrape.timeout"),
		Progress:    func() { _ = bar.Add(1) },
	})
	report, err := s.Run(cmd.Context(), urls)
	if err != nil {
		return err
	}
	_ = bar.Finish()

	fmt.Fprintf(cmd.OutOrStdout(), "%d written, %d failed\n", len(report.Written), len(report.Failed))
	for url, ferr := range report.Failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %v\n", url, ferr)
	}
	return nil
}
