// ABOUTME: Import and export commands for OPML subscription lists
// ABOUTME: Import ingests every listed feed; export writes stored feeds as OPML

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/nexifeed/internal/opml"
)

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Import feeds from an OPML file",
	Long: `Import every feed listed in an OPML file. Each feed is fetched and its
newest items stored. A feed that fails to fetch is reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		doc, err := opml.ParseFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		feeds := a.importer.ImportDocument(cmd.Context(), doc, userID)

		out := cmd.OutOrStdout()
		faint := color.New(color.Faint).SprintFunc()
		for _, f := range feeds {
			title := f.Title
			if title == "" {
				title = f.URL
			}
			fmt.Fprintf(out, "  %s %s\n", title, faint(f.URL))
		}
		color.New(color.FgGreen).Fprintf(out, "Processed %d feeds from %s\n", len(feeds), args[0])
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export feeds as OPML",
	Long:  "Export stored feeds in OPML format to standard output or --output. With --user only that user's feeds are exported.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		doc, err := a.importer.ExportDocument(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if output == "" {
			return doc.Write(cmd.OutOrStdout())
		}
		if err := doc.WriteFile(output); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringP("user", "u", "", "subscribe this user to imported feeds")
	exportCmd.Flags().StringP("user", "u", "", "export only this user's feeds")
	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
}
