package main

import (
	"context"
	"fmt"
	"io"

	"shopfront/internal/events"
	"shopfront/internal/repository"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func ratingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratings",
		Short: "Maintain product rating aggregates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild [product-id]",
		Short: "Recompute rating aggregates from reviews",
		Long: `Recompute the average, count and star breakdown of one product, or of every
product when no id is given. Each product is rebuilt under its row lock, so the
command is safe to run while the API is serving review writes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var only *uuid.UUID
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid product id %q", args[0])
				}
				only = &id
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			publisher := events.New(e.cfg.Kafka, e.logger)
			defer publisher.Close()

			aggregator := repository.NewRatingAggregator(e.db.DB(), e.cfg.Database.QueryTimeout)
			return rebuildRatings(cmd.Context(), aggregator, publisher, only, cmd.OutOrStdout(), e.logger)
		},
	})

	return cmd
}

// rebuildRatings recomputes one product, or all of them when only is nil.
// A failure on one product is reported and the rest still run.
func rebuildRatings(
	ctx context.Context,
	aggregator repository.RatingAggregator,
	publisher events.Publisher,
	only *uuid.UUID,
	out io.Writer,
	logger *zap.Logger,
) error {
	ids := []uuid.UUID{}
	if only != nil {
		ids = append(ids, *only)
	} else {
		var err error
		if ids, err = aggregator.ProductIDs(ctx); err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}
	}

	failed := 0
	for _, id := range ids {
		ratings, err := aggregator.Recompute(ctx, id)
		if err != nil {
			failed++
			logger.Error("Failed to rebuild ratings", zap.String("product_id", id.String()), zap.Error(err))
			continue
		}

		fmt.Fprintf(out, "%s  average=%.1f  count=%d\n", id, ratings.Average, ratings.Count)

		evt := events.Event{
			Type:    events.ProductRatingUpdated,
			Key:     id.String(),
			Payload: map[string]any{"productId": id, "ratings": ratings},
		}
		if err := publisher.Publish(ctx, evt); err != nil {
			logger.Warn("Failed to publish rating update", zap.String("product_id", id.String()), zap.Error(err))
		}
	}

	fmt.Fprintf(out, "rebuilt %d of %d products\n", len(ids)-failed, len(ids))
	if failed > 0 {
		return fmt.Errorf("%d products failed to rebuild", failed)
	}
	return nil
}
