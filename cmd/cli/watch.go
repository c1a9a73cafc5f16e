package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	watchAccountID string
	watchRenew     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Arm Gmail push notifications",
	Long: `Arms the Gmail watch for --account and re-baselines its cursor, or with
--renew re-arms every watch close to expiry.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchAccountID, "account", "", "Connected account ID")
	watchCmd.Flags().BoolVar(&watchRenew, "renew", false, "Renew all expiring watches instead")
	watchCmd.MarkFlagsOneRequired("account", "renew")
	watchCmd.MarkFlagsMutuallyExclusive("account", "renew")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	if watchRenew {
		n, err := a.Watcher.RenewExpiring(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Renewed %d watch(es)\n", n)
		return nil
	}

	res, err := a.Watcher.ArmWatch(cmd.Context(), watchAccountID)
	if err != nil {
		return err
	}
	fmt.Printf("Watching %s: history_id=%s expires=%s\n",
		watchAccountID, res.HistoryID, res.Expiration.Format(time.RFC3339))
	return nil
}
