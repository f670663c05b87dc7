package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func categoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage expense categories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, err := a.categories.ListCategories(cmd.Context())
			if err != nil {
				return err
			}
			if len(categories) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No categories found. Use 'scontrini-cli categories add' to create one.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tICON")
			for _, c := range categories {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Icon)
			}
			return w.Flush()
		},
	})

	var icon string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.categories.AddCategory(cmd.Context(), args[0], icon)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added category %s (%s)\n", c.Name, c.ID)
			return nil
		},
	}
	add.Flags().StringVar(&icon, "icon", "", "icon name shown next to the category")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category no expense refers to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.categories.DeleteCategory(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %s\n", args[0])
			return nil
		},
	})

	return cmd
}
