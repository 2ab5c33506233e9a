package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/store"
)

var (
	keywordPortal string
	keywordURL    string
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Manage the crawl keyword registry",
}

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered keywords",
	RunE:  runKeywordsList,
}

var keywordsAddCmd = &cobra.Command{
	Use:   "add KEYWORD",
	Short: "Register a keyword on a portal",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeywordsAdd,
}

var keywordsEnableCmd = &cobra.Command{
	Use:   "enable KEYWORD",
	Short: "Resume crawling a keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeywordActive(args[0], true)
	},
}

var keywordsDisableCmd = &cobra.Command{
	Use:   "disable KEYWORD",
	Short: "Stop crawling a keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setKeywordActive(args[0], false)
	},
}

func init() {
	for _, c := range []*cobra.Command{keywordsAddCmd, keywordsEnableCmd, keywordsDisableCmd} {
		c.Flags().StringVar(&keywordPortal, "portal", "", "portal name")
		_ = c.MarkFlagRequired("portal")
	}
	keywordsAddCmd.Flags().StringVar(&keywordURL, "url", "", "base URL override for this keyword")

	keywordsCmd.AddCommand(keywordsListCmd, keywordsAddCmd, keywordsEnableCmd, keywordsDisableCmd)
	rootCmd.AddCommand(keywordsCmd)
}

func runKeywordsList(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.Store) error {
		kws, err := st.ListKeywords(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%-5s %-30s %-10s %-9s %s\n", "ID", "Keyword", "Portal", "Status", "Last crawled")
		fmt.Println(strings.Repeat("─", 78))

		active := 0
		for _, k := range kws {
			status := "disabled"
			if k.IsActive {
				status = "active"
				active++
			}
			last := "never"
			if k.LastCrawledDate != nil {
				last = k.LastCrawledDate.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%-5d %-30s %-10s %-9s %s\n", k.ID, k.Keyword, k.PortalName, status, last)
		}

		fmt.Printf("\nTotal: %d keywords (%d active, %d disabled)\n", len(kws), active, len(kws)-active)
		return nil
	})
}

func runKeywordsAdd(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, st *store.Store) error {
		portal := strings.ToLower(keywordPortal)
		if !slices.Contains(portalNames, portal) {
			return fmt.Errorf("portal %q: %w", portal, model.ErrUnknownPortal)
		}
		kw, err := st.RegisterKeyword(ctx, args[0], portal, keywordURL)
		if err != nil {
			return err
		}
		fmt.Printf("registered %q on %s (id %d)\n", kw.Keyword, kw.PortalName, kw.ID)
		return nil
	})
}

func setKeywordActive(keyword string, active bool) error {
	return withStore(func(ctx context.Context, st *store.Store) error {
		kw, err := st.GetKeyword(ctx, keyword, strings.ToLower(keywordPortal))
		if err != nil {
			return err
		}
		if err := st.SetKeywordActive(ctx, kw.ID, active); err != nil {
			return err
		}
		state := "disabled"
		if active {
			state = "enabled"
		}
		fmt.Printf("%s %q on %s\n", state, kw.Keyword, kw.PortalName)
		return nil
	})
}
