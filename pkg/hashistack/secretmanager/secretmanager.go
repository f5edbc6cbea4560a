package secretmanager

import (
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// Enabled reports whether a Vault address is configured in the environment.
func Enabled() bool {
	return os.Getenv("VAULT_ADDR") != ""
}

func ProvideVault() (*vault.Client, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, err
	}

	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		if err := client.SetToken(token); err != nil {
			return nil, err
		}
	}

	return client, nil
}
