package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"serial2epub/downloader"
	"serial2epub/extractor"
)

var listCmd = &cobra.Command{
	Use:   "list <url>",
	Short: "List the chapters found at a table of contents",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

var extractorsCmd = &cobra.Command{
	Use:   "extractors",
	Short: "List the bundled extractors",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range extractor.NewBuiltin(extractor.BuiltinOptions{}).Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

var lsArgs extractorArgs

func init() {
	bindExtractorFlags(listCmd.Flags(), &lsArgs)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(extractorsCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	injector := newContainer(cfg, log, lsArgs.builtinOptions(cfg.Epub.SkipImages), lsArgs.Name)
	defer shutdown(injector)

	book, err := do.MustInvoke[*downloader.Orchestrator](injector).CollectChapterList(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s by %s (%s, extractor %s)\n", book.Meta.Title, book.Meta.Author, book.Meta.Language, book.Extractor)
	if book.CoverUrl != "" {
		fmt.Fprintf(out, "cover: %s\n", book.CoverUrl)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, ref := range book.Chapters {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", ref.Order+1, ref.Title, ref.SourceUrl)
	}
	return tw.Flush()
}
