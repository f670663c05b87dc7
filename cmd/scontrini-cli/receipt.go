package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"scontrini/internal/core"
	"scontrini/internal/receipt"
)

func receiptCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Run the receipt pipeline on local files",
	}

	var commit bool
	scan := &cobra.Command{
		Use:   "scan <file>",
		Short: "Extract the items of a receipt image or PDF",
		Long: `Extract the line items of a receipt and print them. With --commit the
items are saved as expenses dated now, all or nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mimeType, data, err := readReceipt(args[0])
			if err != nil {
				return err
			}

			res, err := a.receipts.Scan(cmd.Context(), mimeType, data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Status == receipt.StatusNoItems {
				fmt.Fprintln(out, "No items found on this receipt.")
				return nil
			}

			categories, err := a.categories.ListCategories(cmd.Context())
			if err != nil {
				return err
			}
			items := res.Review.Remaining()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tDESCRIPTION\tCATEGORY\tAMOUNT")
			for i, it := range items {
				name := it.CategoryID
				if c, ok := core.FindCategory(categories, it.CategoryID); ok {
					name = c.Name
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, it.Description, name, it.Amount)
			}
			fmt.Fprintf(w, "\tTotal\t\t%s\n", res.Review.Total())
			if err := w.Flush(); err != nil {
				return err
			}

			if !commit {
				a.receipts.Discard(res.Review.ID)
				return nil
			}
			created, err := a.receipts.Commit(cmd.Context(), res.Review.ID)
			if err != nil {
				a.receipts.Discard(res.Review.ID)
				return fmt.Errorf("nothing saved: %w", err)
			}
			fmt.Fprintf(out, "Saved %d expenses\n", len(created))
			return nil
		},
	}
	scan.Flags().BoolVar(&commit, "commit", false, "save the items as expenses")
	cmd.AddCommand(scan)

	return cmd
}

// readReceipt loads a local file and guesses its type from the extension,
// falling back to content sniffing.
func readReceipt(path string) (string, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, receipt.MaxFileSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	return receipt.DetectType(mime.TypeByExtension(filepath.Ext(path)), data), data, nil
}
