package main

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/hakim/inspector/internal/auth"
)

var validateTokenCmd = &cobra.Command{
	Use:   "validate-token",
	Short: "Check whether a token is authorized to run scans",
	Long: `Look the token up in the configured token file (token_file) and print
"valid" or "invalid". An invalid token exits with status 2.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("auth-token")

		authorizer := auth.NewFileAuthorizer(afero.NewOsFs(), cfg.TokenFile)
		ok, err := authorizer.Validate(token)
		if err == nil && ok {
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), "invalid")
		if err == nil || errors.Is(err, auth.ErrUnauthorized) {
			logger.Warn("token rejected", "token_file", cfg.TokenFile)
			return auth.ErrUnauthorized
		}
		return err
	},
}

func init() {
	validateTokenCmd.Flags().String("auth-token", "", "Token to validate (required)")
	validateTokenCmd.MarkFlagRequired("auth-token")
	rootCmd.AddCommand(validateTokenCmd)
}
