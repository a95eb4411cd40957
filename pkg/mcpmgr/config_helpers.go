package mcpmgr

// ConfigTransport identifies the transport family used by a ServerConfig.
type ConfigTransport string

const (
	TransportStdio ConfigTransport = "stdio"
	TransportHTTP  ConfigTransport = "http"
)

// TransportOf returns the transport kind for a ServerConfig, or "" for nil and
// unknown implementations.
func TransportOf(cfg ServerConfig) ConfigTransport {
	switch cfg.(type) {
	case *StdioServerConfig:
		return TransportStdio
	case *HTTPServerConfig:
		return TransportHTTP
	default:
		return ""
	}
}

// DisplayName returns the name a Client built from cfg would report.
func DisplayName(cfg ServerConfig) string {
	if cfg == nil {
		return ""
	}
	if name := cfg.base().Name; name != "" {
		return name
	}
	return cfg.defaultName()
}

// ToolPrefixOf returns the tool prefix a Client built from cfg would report.
func ToolPrefixOf(cfg ServerConfig) string {
	if cfg == nil {
		return ""
	}
	return cfg.base().toolPrefix()
}

// AsStdio narrows cfg to *StdioServerConfig.
func AsStdio(cfg ServerConfig) (*StdioServerConfig, bool) {
	c, ok := cfg.(*StdioServerConfig)
	return c, ok
}

// AsHTTP narrows cfg to *HTTPServerConfig.
func AsHTTP(cfg ServerConfig) (*HTTPServerConfig, bool) {
	c, ok := cfg.(*HTTPServerConfig)
	return c, ok
}
