package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	"github.com/fabien-chebel/hiorg-cli/scrape"
	log "github.com/sirupsen/logrus"
)

const apiKeyEnv = "HIORG_APIKEY"

type Config struct {
	OrganizationCode string `json:"organization_code"`
	APIKey           string `json:"api_key"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	TotpSecretKey    string `json:"totp_secret_key"`

	SSOURL    string `json:"sso_url"`
	EFSURL    string `json:"efs_url"`
	BaseURL   string `json:"base_url"`
	TokenURL  string `json:"token_url"`
	ReturnURL string `json:"return_url"`
	AbortURL  string `json:"abort_url"`
	LogoutURL string `json:"logout_url"`

	Fields            []string `json:"fields"`
	RedirectStrategy  string   `json:"redirect_strategy"`
	MaxRedirects      int      `json:"max_redirects"`
	DisableAutoLogout bool     `json:"disable_auto_logout"`

	RelayAddr string `json:"relay_addr"`
}

func parseConfig(path string) (Config, error) {
	var configData = Config{}

	configFile, err := os.Open(path)
	if err != nil {
		return configData, fmt.Errorf("failed to open application configuration file '%s': %w", path, err)
	}
	defer configFile.Close()

	err = json.NewDecoder(configFile).Decode(&configData)
	if err != nil {
		return configData, fmt.Errorf("failed to parse application configuration file '%s': %w", path, err)
	}

	if apiKey := os.Getenv(apiKeyEnv); apiKey != "" {
		log.Debugf("using API key from %s", apiKeyEnv)
		configData.APIKey = apiKey
	}
	return configData, nil
}

func parseStrategy(name string) (hiorg.RedirectStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", hiorg.StrategyNative.String():
		return hiorg.StrategyNative, nil
	case hiorg.StrategyManual.String():
		return hiorg.StrategyManual, nil
	}
	return hiorg.StrategyNative, fmt.Errorf("unknown redirect strategy '%s'", name)
}

func (c Config) clientConfig() (hiorg.Config, error) {
	strategy, err := parseStrategy(c.RedirectStrategy)
	if err != nil {
		return hiorg.Config{}, err
	}
	return hiorg.Config{
		OrganizationCode:  c.OrganizationCode,
		APIKey:            c.APIKey,
		SSOURL:            c.SSOURL,
		EFSURL:            c.EFSURL,
		TokenURL:          c.TokenURL,
		ReturnURL:         c.ReturnURL,
		AbortURL:          c.AbortURL,
		LogoutURL:         c.LogoutURL,
		DisableAutoLogout: c.DisableAutoLogout,
		Fields:            c.Fields,
		MaxRedirects:      c.MaxRedirects,
		Strategy:          strategy,
		Logger:            log.StandardLogger(),
	}, nil
}

func (c Config) extractorConfig() (scrape.Config, error) {
	strategy, err := parseStrategy(c.RedirectStrategy)
	if err != nil {
		return scrape.Config{}, err
	}
	return scrape.Config{
		OrganizationCode: c.OrganizationCode,
		BaseURL:          c.BaseURL,
		TOTPSecret:       c.TotpSecretKey,
		Strategy:         strategy,
		Logger:           log.StandardLogger(),
	}, nil
}
