// ABOUTME: Fetch commands ingesting one feed by URL or every stored feed
// ABOUTME: Prints colored per-feed results and a new-item summary

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/nexifeed/internal/ingest"
	"github.com/harper/nexifeed/internal/models"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch a feed and store its new items",
	Long: `Fetch a feed by URL and store the first --max-items entries that are not
already stored. The feed is created on first fetch; with --user the new feed is
added to that user's subscriptions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		categoryFlag, _ := cmd.Flags().GetString("category")
		maxItems, _ := cmd.Flags().GetInt("max-items")
		userID, _ := cmd.Flags().GetString("user")

		category, err := models.ParseCategory(categoryFlag)
		if err != nil {
			return err
		}
		if maxItems <= 0 {
			maxItems = cfg.Fetch.MaxItems
		}

		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.ingester.FetchAndSave(cmd.Context(), args[0], ingest.Options{
			UserID:   userID,
			Category: category,
			MaxItems: maxItems,
		})
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()
		out := cmd.OutOrStdout()
		if res.NewItems > 0 {
			fmt.Fprintf(out, "%s %s: %d new of %d\n", green("✓"), args[0], res.NewItems, res.TotalItems)
		} else {
			fmt.Fprintf(out, "%s %s: nothing new (%d checked)\n", faint("-"), args[0], res.TotalItems)
		}
		return nil
	},
}

var fetchAllCmd = &cobra.Command{
	Use:   "fetch-all",
	Short: "Fetch every stored feed",
	Long:  "Fetch every stored feed with bounded concurrency. One feed's failure does not stop the others.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		feeds, err := a.catalog.AllFeeds(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list feeds: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(feeds) == 0 {
			fmt.Fprintln(out, "No feeds found. Add one with 'nexifeed fetch <url>'")
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()

		totalNew, failed := 0, 0
		for _, u := range a.ingester.FetchAll(cmd.Context(), feeds) {
			name := u.Feed.DisplayTitle()
			switch {
			case u.Error != "":
				failed++
				fmt.Fprintf(out, "%s %s: %s\n", red("x"), name, u.Error)
			case u.Update.NewItems > 0:
				totalNew += u.Update.NewItems
				fmt.Fprintf(out, "%s %s: %d new\n", green("✓"), name, u.Update.NewItems)
			default:
				fmt.Fprintf(out, "%s %s\n", faint("-"), name)
			}
		}

		fmt.Fprintf(out, "\n%d feeds, %d new items, %d failed\n", len(feeds), totalNew, failed)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringP("category", "c", "", "feed category (YOUTUBE, PODCAST, VIDEO, BLOG, UNKNOWN)")
	fetchCmd.Flags().IntP("max-items", "n", 0, "consider only the first N entries (default from config)")
	fetchCmd.Flags().StringP("user", "u", "", "subscribe this user to a newly created feed")
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(fetchAllCmd)
}
