package main

import (
	"bytes"
	"strings"
	"testing"

	"genhub/internal/config"
	"genhub/internal/infra/security"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSealRoundTrip(t *testing.T) {
	t.Setenv(config.EnvVaultPassphrase, "test passphrase")
	out, err := run(t, "sk-live-abcd\n", "seal")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	svc, _ := security.NewEncryptionService("test passphrase")
	plain, err := svc.Decrypt(strings.TrimSpace(out))
	if err != nil || plain != "sk-live-abcd" {
		t.Fatalf("decrypt = %q %v", plain, err)
	}
}

func TestSealRequiresSecret(t *testing.T) {
	t.Setenv(config.EnvVaultPassphrase, "test passphrase")
	if _, err := run(t, "  \n", "seal"); err == nil {
		t.Fatalf("empty stdin accepted")
	}
}

func TestMask(t *testing.T) {
	out, err := run(t, "sk-secret-9876", "mask")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "********9876" {
		t.Fatalf("mask = %q", out)
	}
}
