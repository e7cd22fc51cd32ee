package main

import (
	"net"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"audioshelf/internal/config"
)

type rootFlags struct {
	config string
	apiURL string
	token  string
	json   bool
}

type commandContext struct {
	flags *rootFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) client() (*apiClient, error) {
	base := strings.TrimSpace(c.flags.apiURL)
	token := strings.TrimSpace(c.flags.token)
	if base == "" || token == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		if base == "" {
			base = baseURLForBind(cfg.Paths.APIBind)
		}
		if token == "" {
			token = cfg.Paths.APIToken
		}
	}
	return newAPIClient(base, token), nil
}

func (c *commandContext) jsonOutput() bool {
	return c.flags.json
}

// baseURLForBind turns a listen address into a dialable URL. Wildcard
// hosts are reached through loopback.
func baseURLForBind(bind string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil {
		return "http://" + strings.TrimSpace(bind)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
