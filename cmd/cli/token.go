package cli

import (
	"fmt"
	"time"

	authdomain "mailflow-backend/internal/auth/domain"
	authUsecase "mailflow-backend/internal/auth/usecase"

	"github.com/spf13/cobra"
)

var (
	tokenUserID string
	tokenEmail  string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API access token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		uc := authUsecase.NewAuthUsecase(cfg.JWTSecret)
		token, err := uc.GenerateAccessToken(authdomain.Principal{UserID: tokenUserID, Email: tokenEmail}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "User ID (required)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
