package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thunderhead-labs/poktinfo/pkg/height"
	"github.com/thunderhead-labs/poktinfo/pkg/price"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
)

type PricesHistoryCmd struct{}

func NewPricesHistoryCmd() *PricesHistoryCmd {
	return &PricesHistoryCmd{}
}

func (c *PricesHistoryCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices-history",
		Short: "Backfill one daily price per day, stored at the height of that day's midnight",
		RunE: func(cmd *cobra.Command, args []string) error {
			coin, err := cmd.Flags().GetString("coin")
			if err != nil {
				return fmt.Errorf("failed to get coin flag: %w", err)
			}
			currency, err := cmd.Flags().GetString("currency")
			if err != nil {
				return fmt.Errorf("failed to get currency flag: %w", err)
			}
			fromStr, err := cmd.Flags().GetString("from")
			if err != nil {
				return fmt.Errorf("failed to get from flag: %w", err)
			}
			toStr, err := cmd.Flags().GetString("to")
			if err != nil {
				return fmt.Errorf("failed to get to flag: %w", err)
			}
			from, err := parseTime(fromStr)
			if err != nil {
				return err
			}
			to := time.Now().UTC()
			if toStr != "" {
				if to, err = parseTime(toStr); err != nil {
					return err
				}
			}

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			store, err := e.store()
			if err != nil {
				return err
			}
			defer store.Close()

			client, _, err := e.chain(nil)
			if err != nil {
				return err
			}
			resolver, err := height.NewResolver(e.log.Named("height"), client)
			if err != nil {
				return err
			}
			defer resolver.Close()

			gecko := price.NewCoinGecko(price.Opts{
				BaseURL: e.cfg.PriceURL,
				APIKey:  utils.Env("COINGECKO_API_KEY", ""),
				Logger:  e.log.Named("price"),
			})
			recorder := price.NewRecorder(e.log.Named("price"), gecko, store, resolver)

			n, err := recorder.RecordHistory(e.ctx, coin, currency, from, to)
			fmt.Printf("Recorded %d daily %s/%s prices\n", n, coin, currency)
			return err
		},
	}

	cmd.Flags().String("coin", "pokt", "coin symbol")
	cmd.Flags().String("currency", "usd", "quote currency")
	cmd.Flags().String("from", "", "first day (RFC3339, YYYY-MM-DD or unix seconds)")
	cmd.Flags().String("to", "", "last day (default today)")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}
