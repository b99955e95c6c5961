package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "civitdl"
	keyringUser    = "api_key"
)

// Token sources reported by ResolveToken.
const (
	SourceFlag    = "flag"
	SourceEnv     = "env"
	SourceKeyring = "keyring"
	SourceFile    = "file"
)

// tokenEnv lists accepted environment variables in priority order.
var tokenEnv = []string{"CIVITDL_API_KEY", "CIVITAI_TOKEN"}

// ResolveToken picks the API token: flag, then environment, then the OS
// keyring (when configured), then the config file. source is empty when no
// token was found.
func ResolveToken(flag string, c Config, getenv func(string) string) (token, source string) {
	if t := strings.TrimSpace(flag); t != "" {
		return t, SourceFlag
	}
	for _, k := range tokenEnv {
		if t := strings.TrimSpace(getenv(k)); t != "" {
			return t, SourceEnv
		}
	}
	if c.TokenStore == TokenStoreKeyring {
		if t, err := keyring.Get(keyringService, keyringUser); err == nil && t != "" {
			return t, SourceKeyring
		}
	}
	if t := strings.TrimSpace(c.APIKey); t != "" {
		return t, SourceFile
	}
	return "", ""
}

// StoreToken records token according to c.TokenStore and returns the config
// to persist. With the keyring store the file never holds the key.
func StoreToken(c Config, token string) (Config, error) {
	if c.TokenStore == TokenStoreKeyring {
		if err := keyring.Set(keyringService, keyringUser, token); err != nil {
			return c, fmt.Errorf("store token in keyring: %w", err)
		}
		c.APIKey = ""
		return c, nil
	}
	c.APIKey = token
	return c, nil
}

func deleteKeyringToken() (bool, error) {
	err := keyring.Delete(keyringService, keyringUser)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, keyring.ErrNotFound), errors.Is(err, keyring.ErrUnsupportedPlatform):
		return false, nil
	default:
		return false, fmt.Errorf("delete keyring token: %w", err)
	}
}
