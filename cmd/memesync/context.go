package main

import (
	"os"
	"strings"
)

const defaultServer = "http://localhost:8080"

// commandContext resolves the shared connection flags lazily so every command
// picks up the final flag values at run time, not at registration time.
type commandContext struct {
	serverFlag *string
	apiKeyFlag *string
}

func newCommandContext(serverFlag, apiKeyFlag *string) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		apiKeyFlag: apiKeyFlag,
	}
}

func (c *commandContext) serverURL() string {
	if c.serverFlag != nil {
		if v := strings.TrimSpace(*c.serverFlag); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMESYNC_SERVER")); v != "" {
		return v
	}
	return defaultServer
}

func (c *commandContext) apiKey() string {
	if c.apiKeyFlag != nil {
		if v := strings.TrimSpace(*c.apiKeyFlag); v != "" {
			return v
		}
	}
	return strings.TrimSpace(os.Getenv("MEMESYNC_API_KEY"))
}

func (c *commandContext) client() (*apiClient, error) {
	return newAPIClient(c.serverURL(), c.apiKey())
}
