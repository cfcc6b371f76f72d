// ABOUTME: Feed management commands for listing, deleting, and recategorizing feeds
// ABOUTME: Operates directly on storage through the catalog service

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/nexifeed/internal/catalog"
	"github.com/harper/nexifeed/internal/config"
)

var feedCmd = &cobra.Command{
	Use:     "feed",
	Aliases: []string{"feeds"},
	Short:   "Manage stored feeds",
}

var feedListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored feeds",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")

		cat := catalog.NewService(store, nil, logger)
		feeds, err := cat.ListFeeds(cmd.Context(), catalog.FeedQuery{Search: search, Page: page, Limit: limit})
		if err != nil {
			return fmt.Errorf("failed to list feeds: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(feeds) == 0 {
			fmt.Fprintln(out, "No feeds found.")
			return nil
		}

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		for _, f := range feeds {
			category := string(f.Category)
			if category == "" {
				category = "-"
			}
			fmt.Fprintf(out, "%s  %s  %s\n", faint(shortID(f.ID)), bold(f.DisplayTitle()), cyan(category))
			fmt.Fprintf(out, "          %s\n", faint(f.URL))
		}
		return nil
	},
}

var feedDeleteCmd = &cobra.Command{
	Use:     "delete <id|url>",
	Aliases: []string{"rm"},
	Short:   "Delete a feed with its items and subscriptions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := catalog.NewService(store, nil, logger)
		feed, err := cat.DeleteFeed(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete feed %s: %w", args[0], err)
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Deleted %s\n", feed.DisplayTitle())
		return nil
	},
}

var feedCategoryCmd = &cobra.Command{
	Use:   "category <id> <category>",
	Short: "Change a feed's category",
	Long:  "Change a feed's category. Valid categories: YOUTUBE, PODCAST, VIDEO, BLOG, UNKNOWN.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := catalog.NewService(store, nil, logger)
		feed, err := cat.UpdateCategory(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to update category: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", feed.DisplayTitle(), feed.Category)
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	feedListCmd.Flags().StringP("search", "s", "", "filter by title or URL")
	feedListCmd.Flags().Int("page", 1, "page number")
	feedListCmd.Flags().Int("limit", config.MaxListLimit, "feeds per page")

	feedCmd.AddCommand(feedListCmd)
	feedCmd.AddCommand(feedDeleteCmd)
	feedCmd.AddCommand(feedCategoryCmd)
	rootCmd.AddCommand(feedCmd)
}
