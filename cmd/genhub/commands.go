package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"genhub/internal/config"
	"genhub/internal/infra/logging"
	"genhub/internal/infra/security"
)

// --- await ---

var awaitCmd = &cobra.Command{
	Use:   "await <job-id>",
	Short: "Poll a running job until it settles and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.New(cfg.Log, cfg.Runtime.Dev)
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		job, err := a.tracker.Await(cmd.Context(), args[0])
		if job != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(job); encErr != nil {
				return encErr
			}
		}
		return err
	},
}

// --- seal / mask ---

var sealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Encrypt a secret read from stdin with the vault passphrase",
	Long: `Encrypt a secret read from stdin with the vault passphrase.

The output is the blob stored in provider_credentials.encrypted_secret, for
seeding credentials without the API:

  printf 'sk-...' | GENHUB_VAULT_PASSPHRASE=... genhub seal`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pass, err := passphrase()
		if err != nil {
			return err
		}
		svc, err := security.NewEncryptionService(pass)
		if err != nil {
			return err
		}
		secret, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		blob, err := svc.Encrypt(secret)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), blob)
		return nil
	},
}

var maskCmd = &cobra.Command{
	Use:   "mask",
	Short: "Print the display form of a secret read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), security.Mask(secret))
		return nil
	},
}

// passphrase prefers the environment and falls back to the config file.
func passphrase() (string, error) {
	if v := os.Getenv(config.EnvVaultPassphrase); v != "" {
		return v, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", fmt.Errorf("no %s set and config unreadable: %w", config.EnvVaultPassphrase, err)
	}
	if cfg.Vault.Passphrase == "" {
		return "", errors.New("vault passphrase is not configured")
	}
	return cfg.Vault.Passphrase, nil
}

func readSecret(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", errors.New("no secret on stdin")
	}
	return s, nil
}
