package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	syncAccountID string
	syncHint      string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass for an account",
	Long: `Runs a single sync pass in the foreground, as if a notification carrying
--hint had arrived, and prints the pass summary as JSON.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncAccountID, "account", "", "Connected account ID (required)")
	syncCmd.Flags().StringVar(&syncHint, "hint", "", "History id to store as the new cursor (required)")
	_ = syncCmd.MarkFlagRequired("account")
	_ = syncCmd.MarkFlagRequired("hint")
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	res, err := a.Coordinator.RunSync(cmd.Context(), syncAccountID, syncHint)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
