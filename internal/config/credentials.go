package config

import (
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type ValKeyCredentials struct {
	Host     string
	User     string
	Password string
}

// LoadValKeyCredentials resolves the source references of the valkey config.
func LoadValKeyCredentials(conf ValKey) (ValKeyCredentials, error) {
	host, err := commoncfg.LoadValueFromSourceRef(conf.Host)
	if err != nil {
		return ValKeyCredentials{}, fmt.Errorf("loading valkey host: %w", err)
	}

	user, err := commoncfg.LoadValueFromSourceRef(conf.User)
	if err != nil {
		return ValKeyCredentials{}, fmt.Errorf("loading valkey user: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(conf.Password)
	if err != nil {
		return ValKeyCredentials{}, fmt.Errorf("loading valkey password: %w", err)
	}

	return ValKeyCredentials{
		Host:     string(host),
		User:     string(user),
		Password: string(password),
	}, nil
}

// LoadCSRFSecret returns the configured csrf secret. A nil secret without
// error means csrf protection is disabled.
func LoadCSRFSecret(conf Gateway) ([]byte, error) {
	if conf.CSRFSecret.Source == "" {
		return nil, nil
	}

	secret, err := commoncfg.LoadValueFromSourceRef(conf.CSRFSecret)
	if err != nil {
		return nil, fmt.Errorf("loading csrf secret: %w", err)
	}

	return secret, nil
}
