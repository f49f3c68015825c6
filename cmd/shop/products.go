package main

import (
	"fmt"
	"text/tabwriter"

	"shopfront/internal/storefront"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func productsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Browse the catalogue",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List products matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := productQuery(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			page, err := a.client.ListProducts(cmd.Context(), q)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTOCK\tRATING")
			for _, p := range page.Products {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f (%d)\n",
					p.ID, p.Name, p.Price.StringFixed(2), p.Stock, p.Ratings.Average, p.Ratings.Count)
			}
			tw.Flush()
			fmt.Fprintf(a.out, "page %d of %d, %d products\n", page.Page, page.TotalPages, page.Total)
			return nil
		},
	}

	list.Flags().String("category", "", "only this category")
	list.Flags().String("search", "", "match name or description")
	list.Flags().String("sort", "", "newest, price_asc, price_desc or rating")
	list.Flags().String("min-price", "", "lowest price")
	list.Flags().String("max-price", "", "highest price")
	list.Flags().Bool("in-stock", false, "only products in stock")
	list.Flags().Bool("featured", false, "only featured products")
	list.Flags().Int("page", 1, "page number")
	list.Flags().Int("limit", 12, "products per page")

	cmd.AddCommand(list)
	return cmd
}

func productQuery(cmd *cobra.Command) (storefront.ProductQuery, error) {
	f := cmd.Flags()
	q := storefront.ProductQuery{}
	q.Category, _ = f.GetString("category")
	q.Search, _ = f.GetString("search")
	q.Sort, _ = f.GetString("sort")
	q.InStock, _ = f.GetBool("in-stock")
	q.Featured, _ = f.GetBool("featured")
	q.Page, _ = f.GetInt("page")
	q.Limit, _ = f.GetInt("limit")

	for flag, dst := range map[string]**decimal.Decimal{"min-price": &q.MinPrice, "max-price": &q.MaxPrice} {
		raw, _ := f.GetString(flag)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return q, fmt.Errorf("invalid --%s %q", flag, raw)
		}
		*dst = &v
	}
	return q, nil
}
