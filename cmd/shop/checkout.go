package main

import (
	"errors"
	"fmt"
	"time"

	"shopfront/internal/domain"
	"shopfront/internal/storefront"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func checkoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Submit the cart as an order and print the payment client secret",
		Long: `Submit the cart lines as an order. Signed-in users order on their account;
pass --guest-email to order without one. Prices and totals are computed by the
server. The cart is emptied once the order is accepted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			guestEmail, _ := f.GetString("guest-email")
			var address domain.Address
			address.Street, _ = f.GetString("street")
			address.City, _ = f.GetString("city")
			address.State, _ = f.GetString("state")
			address.Country, _ = f.GetString("country")
			address.PostalCode, _ = f.GetString("postal-code")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cart.IsEmpty() {
				return errors.New("cart is empty")
			}

			var result *storefront.CheckoutResult
			switch {
			case guestEmail != "":
				a.client.SetToken("")
				result, err = a.client.GuestCheckout(cmd.Context(), guestEmail, a.cart.Lines(), address)
			case a.session == nil || a.session.Expired(time.Now()):
				return errors.New("not signed in: run shop login or pass --guest-email")
			default:
				result, err = a.client.Checkout(cmd.Context(), a.cart.Lines(), address)
			}
			if err != nil {
				return fmt.Errorf("checkout failed: %w", err)
			}

			if err := a.cart.Clear(); err != nil {
				a.logger.Warn("Order placed but the cart could not be cleared", zap.Error(err))
			}

			fmt.Fprintf(a.out, "order %s (%s) total %s %s\n",
				result.Order.OrderNumber, result.Order.Status, result.Order.TotalAmount.StringFixed(2), result.Order.Currency)
			fmt.Fprintf(a.out, "client secret: %s\n", result.ClientSecret)
			return nil
		},
	}

	cmd.Flags().String("guest-email", "", "order as a guest with this email")
	cmd.Flags().String("street", "", "shipping street")
	cmd.Flags().String("city", "", "shipping city")
	cmd.Flags().String("state", "", "shipping state")
	cmd.Flags().String("country", "US", "shipping country")
	cmd.Flags().String("postal-code", "", "shipping postal code")
	return cmd
}

func orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order <order-id>",
		Short: "Show the status of one of your orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if a.session == nil {
				return errors.New("not signed in: run shop login")
			}

			order, err := a.client.GetOrder(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "order %s: %s\n", order.OrderNumber, order.Status)
			for _, item := range order.Items {
				fmt.Fprintf(a.out, "  %d x %s @ %s\n", item.Quantity, item.Name, item.UnitPrice.StringFixed(2))
			}
			fmt.Fprintf(a.out, "total %s %s\n", order.TotalAmount.StringFixed(2), order.Currency)
			return nil
		},
	}
}
