package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the local cart",
	}

	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product, merging with an existing line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			qty, _ := cmd.Flags().GetInt("qty")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			// the line keeps a snapshot of the product as it was when added
			detail, err := a.client.GetProduct(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := a.cart.Add(detail.Product, qty); err != nil {
				return err
			}
			return printCart(a)
		},
	}
	add.Flags().Int("qty", 1, "quantity to add")

	remove := &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cart.Remove(id); err != nil {
				return err
			}
			return printCart(a)
		},
	}

	set := &cobra.Command{
		Use:   "set <product-id> <qty>",
		Short: "Set the quantity of a line; below 1 removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cart.SetQuantity(id, qty); err != nil {
				return err
			}
			return printCart(a)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cart.Clear(); err != nil {
				return err
			}
			return printCart(a)
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cart and its totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			return printCart(a)
		},
	}

	cmd.AddCommand(add, remove, set, clearCmd, show)
	return cmd
}

func parseProductID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid product id %q", s)
	}
	return id, nil
}

func printCart(a *app) error {
	if a.cart.IsEmpty() {
		fmt.Fprintln(a.out, "cart is empty")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tQTY\tTOTAL")
	for _, l := range a.cart.Lines() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", l.ProductID, l.Name, l.Price.StringFixed(2), l.Quantity, l.Total().StringFixed(2))
	}
	totals := a.cart.Totals()
	fmt.Fprintf(tw, "\t\t\titems\t%d\n", totals.ItemCount)
	fmt.Fprintf(tw, "\t\t\tsubtotal\t%s\n", totals.Subtotal.StringFixed(2))
	fmt.Fprintf(tw, "\t\t\tshipping\t%s\n", totals.Shipping.StringFixed(2))
	fmt.Fprintf(tw, "\t\t\ttotal\t%s\n", totals.Total.StringFixed(2))
	return tw.Flush()
}
