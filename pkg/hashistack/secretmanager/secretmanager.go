package secretmanager

import (
	"fmt"
	"os"
	"strconv"
	"time"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

// Module provides the vault client config.LoadConfig reads ledger secrets
// from. Address and token come from VAULT_ADDR/VAULT_TOKEN.
var Module = fx.Module("secretmanager", fx.Provide(NewVaultClient))

// NewVaultClient returns nil without error when VAULT_ENABLE is unset or
// false, so a local ledger starts without a vault agent.
func NewVaultClient() (*vault.Client, error) {
	enabled, err := vaultEnabled()
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}

	client, err := vault.New(
		vault.WithEnvironment(),
		vault.WithRequestTimeout(requestTimeout),
	)
	if err != nil {
		return nil, err
	}

	zap.L().Info("vault client ready", zap.String("addr", client.Configuration().Address))
	return client, nil
}

func vaultEnabled() (bool, error) {
	raw := os.Getenv("VAULT_ENABLE")
	if raw == "" {
		return false, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("VAULT_ENABLE: %w", err)
	}
	return enabled, nil
}
