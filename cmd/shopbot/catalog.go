package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shopbot/internal/model"
)

func newCatalogCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List catalog products as the bot sees them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			products, err := a.shop.ListProducts(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing products: %w", err)
			}
			return writeCatalog(cmd.OutOrStdout(), products, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output products as JSON")
	return cmd
}

func writeCatalog(w io.Writer, products []model.Product, asJSON bool) error {
	if asJSON {
		if products == nil {
			products = []model.Product{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(products)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, model.FormatPrice(p.Price))
	}
	return tw.Flush()
}
