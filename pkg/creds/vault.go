package creds

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	api "github.com/hashicorp/vault/api"
	log "github.com/sirupsen/logrus"
)

type VaultConfig struct {
	VaultAddr string
	TokenFile string
	CACert    string
}

// NewVaultClient builds an authenticated Vault client. The token comes from
// TokenFile when set, otherwise the client falls back to the VAULT_TOKEN
// environment the api package reads itself.
func NewVaultClient(cfg *VaultConfig) (*api.Client, error) {
	apiCfg := api.DefaultConfig()
	if cfg.VaultAddr != "" {
		apiCfg.Address = cfg.VaultAddr
	}
	if cfg.CACert != "" {
		err := apiCfg.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert})
		if err != nil {
			return nil, err
		}
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, err
	}

	if cfg.TokenFile != "" {
		bytes, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("error reading token: %s", err)
		}
		client.SetToken(strings.TrimSpace(string(bytes)))
	}

	return client, nil
}

// VaultSource reads dynamic credentials from a Vault logical path, e.g.
// database/creds/foo.
type VaultSource struct {
	client *api.Client
	path   string

	// Endpoint is the resource the credentials are for; Vault only knows
	// about the principal and secret.
	Endpoint string
}

func NewVaultSource(client *api.Client, secretPath string) *VaultSource {
	return &VaultSource{client: client, path: secretPath}
}

func (s *VaultSource) Fetch(ctx context.Context) (*Credentials, error) {
	log.Infof("requesting credentials from vault path %s", s.path)

	secret, err := s.client.Logical().ReadWithContext(ctx, s.path)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, fmt.Errorf("secret is nil")
	}

	username, ok := secret.Data["username"].(string)
	if !ok {
		return nil, fmt.Errorf("secret at %s has no username", s.path)
	}
	password, ok := secret.Data["password"].(string)
	if !ok {
		return nil, fmt.Errorf("secret at %s has no password", s.path)
	}

	log.WithFields(secretFields(secret)).Infof("succesfully retrieved credentials")

	return &Credentials{
		Endpoint:  s.Endpoint,
		Principal: username,
		Secret:    password,
		LeaseID:   secret.LeaseID,
		Expiry:    time.Now().Add(time.Duration(secret.LeaseDuration) * time.Second),
	}, nil
}

func secretFields(secret *api.Secret) log.Fields {
	fields := log.Fields{
		"requestID":     secret.RequestID,
		"leaseID":       secret.LeaseID,
		"renewable":     secret.Renewable,
		"leaseDuration": secret.LeaseDuration,
	}

	if secret.Auth != nil {
		fields["auth.policies"] = secret.Auth.Policies
		fields["auth.leaseDuration"] = secret.Auth.LeaseDuration
		fields["auth.renewable"] = secret.Auth.Renewable
		fields["warnings"] = secret.Warnings
	}

	return fields
}
