package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/manthysbr/aule-weather/internal/config"
)

// encryptSecretCMD prints a sealed value to paste into the config file.
func encryptSecretCMD(cfgPath *string) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "encrypt-secret <value>",
		Short: "Seal a secret for use in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("AULE_SECRET_KEY")
			}
			if key == "" && *cfgPath != "" {
				if cfg, err := config.Load(*cfgPath); err == nil {
					key = cfg.SecretKey
				}
			}
			if key == "" {
				return errors.New("no secret key: pass --key or set AULE_SECRET_KEY")
			}
			sealed, err := config.NewSecretBox(key).Seal(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "passphrase (defaults to AULE_SECRET_KEY)")
	return cmd
}
