package config

import "strings"

// GatewayConfig names the headers the upstream auth gateway uses to pass the authenticated
// principal. The service never authenticates requests itself.
type GatewayConfig struct {
	UserIDHeader string `env:"GATEWAY_USER_ID_HEADER" envDefault:"X-User-Id"`
	RoleHeader   string `env:"GATEWAY_ROLE_HEADER"    envDefault:"X-User-Role"`
	StatusHeader string `env:"GATEWAY_STATUS_HEADER"  envDefault:"X-User-Status"`
}

// Sanitize restores defaults for blank header names.
func (g *GatewayConfig) Sanitize() {
	g.UserIDHeader = headerOrDefault(g.UserIDHeader, "X-User-Id")
	g.RoleHeader = headerOrDefault(g.RoleHeader, "X-User-Role")
	g.StatusHeader = headerOrDefault(g.StatusHeader, "X-User-Status")
}

func headerOrDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
