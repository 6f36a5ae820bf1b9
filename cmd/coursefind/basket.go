package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"coursefind/internal/basket"
	"coursefind/internal/format"
)

var basketCmd = &cobra.Command{
	Use:   "basket",
	Short: "Manage the sections planned for the configured term",
}

var basketListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the basket with credit totals and conflicts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		v, err := a.baskets.View(cmd.Context())
		if err != nil {
			return err
		}
		printBasket(cmd.OutOrStdout(), v)
		return nil
	},
}

var basketAddCmd = &cobra.Command{
	Use:   "add <section>...",
	Short: "Add sections to the basket",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editBasket(cmd, args, (*basket.Service).AddSection)
	},
}

var basketRemoveCmd = &cobra.Command{
	Use:   "remove <section>...",
	Short: "Remove sections from the basket",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editBasket(cmd, args, (*basket.Service).RemoveSection)
	},
}

var basketSaveQueryCmd = &cobra.Command{
	Use:   "save-query <query>",
	Short: "Remember a search query with the basket",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		v, err := a.baskets.SaveQuery(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		printBasket(cmd.OutOrStdout(), v)
		return nil
	},
}

func init() {
	basketCmd.AddCommand(basketListCmd)
	basketCmd.AddCommand(basketAddCmd)
	basketCmd.AddCommand(basketRemoveCmd)
	basketCmd.AddCommand(basketSaveQueryCmd)
	rootCmd.AddCommand(basketCmd)
}

type basketEdit func(*basket.Service, context.Context, string) (basket.View, error)

func editBasket(cmd *cobra.Command, ids []string, edit basketEdit) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var v basket.View
	for _, id := range ids {
		if v, err = edit(a.baskets, cmd.Context(), id); err != nil {
			return err
		}
	}
	printBasket(cmd.OutOrStdout(), v)
	return nil
}

func printBasket(w io.Writer, v basket.View) {
	fmt.Fprintf(w, "%s basket: %d sections, %s\n", v.Term, len(v.Sections), v.TotalCredits)
	for _, sec := range v.Sections {
		fmt.Fprintf(w, "  %-8s %-4s %s\n", sec.ID, sec.Code, format.Schedule(sec.ParsedTime))
	}
	for _, q := range v.Queries {
		if q.Credits != "" {
			fmt.Fprintf(w, "  query %q (%s)\n", q.Query, q.Credits)
		} else {
			fmt.Fprintf(w, "  query %q\n", q.Query)
		}
	}
	for _, c := range v.Conflicts {
		fmt.Fprintf(w, "  conflict: %s and %s\n", c.A, c.B)
	}
}
