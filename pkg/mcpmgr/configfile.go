package mcpmgr

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/vikashloomba/mcp-client-manager-go/pkg/mcptransport"
)

// FileConfig is the parsed form of a YAML configuration file.
type FileConfig struct {
	LogLevel slog.Level
	Servers  map[string]ServerConfig
	// ToolFilters holds include_tools/exclude_tools per server ID.
	ToolFilters map[string]ToolFilter
	Gateway     GatewayFileConfig
}

// GatewayFileConfig holds the optional gateway section.
type GatewayFileConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

type fileDocument struct {
	LogLevel string                `yaml:"log_level"`
	Servers  map[string]fileServer `yaml:"servers"`
	Gateway  GatewayFileConfig     `yaml:"gateway"`
}

// fileServer keeps loosely typed fields as any so that "5", 5 and "5s" are
// all accepted.
type fileServer struct {
	Transport      string  `yaml:"transport"`
	Name           string  `yaml:"name"`
	ToolPrefix     *string `yaml:"tool_prefix"`
	CacheToolsList any     `yaml:"cache_tools_list"`
	Timeout        any     `yaml:"timeout"`
	LogJSONRPC     any     `yaml:"log_jsonrpc"`
	Version        string  `yaml:"version"`

	IncludeTools []string `yaml:"include_tools"`
	ExcludeTools []string `yaml:"exclude_tools"`

	Command              string `yaml:"command"`
	Args                 any    `yaml:"args"`
	Env                  any    `yaml:"env"`
	Cwd                  string `yaml:"cwd"`
	Encoding             string `yaml:"encoding"`
	EncodingErrorHandler string `yaml:"encoding_error_handler"`
	TerminateTimeout     any    `yaml:"terminate_timeout"`

	URL            string `yaml:"url"`
	Headers        any    `yaml:"headers"`
	ConnectTimeout any    `yaml:"connect_timeout"`
	SSEReadTimeout any    `yaml:"sse_read_timeout"`
	Mode           string `yaml:"mode"`
	MaxRetries     any    `yaml:"max_retries"`
}

// LoadConfig reads a YAML configuration file. ${VAR} references are expanded
// from the given .env files first and the process environment second.
func LoadConfig(path string, envFiles ...string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcpmgr: read config: %w", err)
	}
	vars := map[string]string{}
	if len(envFiles) > 0 {
		vars, err = godotenv.Read(envFiles...)
		if err != nil {
			return nil, fmt.Errorf("mcpmgr: read env files: %w", err)
		}
	}
	return ParseConfig(data, vars)
}

// ParseConfig parses YAML configuration bytes. vars take precedence over the
// process environment during ${VAR} expansion.
func ParseConfig(data []byte, vars map[string]string) (*FileConfig, error) {
	expanded := os.Expand(string(data), func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return os.Getenv(key)
	})
	var doc fileDocument
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("mcpmgr: parse config: %w", err)
	}
	level, err := ParseLogLevel(doc.LogLevel)
	if err != nil {
		return nil, configError("", err)
	}
	out := &FileConfig{
		LogLevel:    level,
		Servers:     make(map[string]ServerConfig, len(doc.Servers)),
		ToolFilters: make(map[string]ToolFilter),
		Gateway:     doc.Gateway,
	}
	ids := make([]string, 0, len(doc.Servers))
	for id := range doc.Servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cfg, err := doc.Servers[id].build()
		if err != nil {
			return nil, configError(id, err)
		}
		if err := ValidateConfig(cfg); err != nil {
			return nil, &Error{Server: id, Kind: KindConfig, Op: "configure", Err: errors.Unwrap(err)}
		}
		out.Servers[id] = cfg
		if srv := doc.Servers[id]; len(srv.IncludeTools) > 0 || len(srv.ExcludeTools) > 0 {
			out.ToolFilters[id] = ToolFilter{Include: srv.IncludeTools, Exclude: srv.ExcludeTools}
		}
	}
	return out, nil
}

func (s fileServer) build() (ServerConfig, error) {
	base, err := s.base()
	if err != nil {
		return nil, err
	}
	transport := strings.ToLower(strings.TrimSpace(s.Transport))
	if transport == "" {
		switch {
		case s.Command != "":
			transport = string(TransportStdio)
		case s.URL != "":
			transport = string(TransportHTTP)
		}
	}
	switch transport {
	case string(TransportStdio):
		return s.stdio(base)
	case string(TransportHTTP), "sse", "streamable":
		return s.http(base, transport)
	default:
		return nil, fmt.Errorf("unknown transport %q", s.Transport)
	}
}

func (s fileServer) base() (BaseServerConfig, error) {
	b := BaseServerConfig{Name: s.Name, Version: s.Version}
	if s.ToolPrefix != nil {
		b.ToolPrefix = *s.ToolPrefix
		b.DisableToolPrefix = *s.ToolPrefix == ""
	}
	var err error
	if b.CacheToolsList, err = optionalBool(s.CacheToolsList); err != nil {
		return b, fmt.Errorf("cache_tools_list: %w", err)
	}
	b.DisableCacheToolsList = s.CacheToolsList != nil && !b.CacheToolsList
	if b.LogJSONRPC, err = optionalBool(s.LogJSONRPC); err != nil {
		return b, fmt.Errorf("log_jsonrpc: %w", err)
	}
	b.DisableLogJSONRPC = s.LogJSONRPC != nil && !b.LogJSONRPC
	if b.Timeout, err = seconds(s.Timeout); err != nil {
		return b, fmt.Errorf("timeout: %w", err)
	}
	return b, nil
}

func (s fileServer) stdio(base BaseServerConfig) (*StdioServerConfig, error) {
	cfg := &StdioServerConfig{
		BaseServerConfig:     base,
		Command:              s.Command,
		Dir:                  s.Cwd,
		Encoding:             s.Encoding,
		EncodingErrorHandler: mcptransport.DecodeErrorPolicy(strings.ToLower(s.EncodingErrorHandler)),
	}
	var err error
	if s.Args != nil {
		if cfg.Args, err = cast.ToStringSliceE(s.Args); err != nil {
			return nil, fmt.Errorf("args: %w", err)
		}
	}
	if s.Env != nil {
		if cfg.Env, err = cast.ToStringMapStringE(s.Env); err != nil {
			return nil, fmt.Errorf("env: %w", err)
		}
	}
	if cfg.TerminateTimeout, err = seconds(s.TerminateTimeout); err != nil {
		return nil, fmt.Errorf("terminate_timeout: %w", err)
	}
	return cfg, nil
}

func (s fileServer) http(base BaseServerConfig, transport string) (*HTTPServerConfig, error) {
	cfg := &HTTPServerConfig{
		BaseServerConfig: base,
		URL:              s.URL,
		Mode:             mcptransport.HTTPMode(strings.ToLower(s.Mode)),
	}
	if cfg.Mode == "" && transport != string(TransportHTTP) {
		cfg.Mode = mcptransport.HTTPMode(transport)
	}
	var err error
	if s.Headers != nil {
		if cfg.Headers, err = cast.ToStringMapStringE(s.Headers); err != nil {
			return nil, fmt.Errorf("headers: %w", err)
		}
	}
	if cfg.ConnectTimeout, err = seconds(s.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("connect_timeout: %w", err)
	}
	if cfg.StreamReadTimeout, err = seconds(s.SSEReadTimeout); err != nil {
		return nil, fmt.Errorf("sse_read_timeout: %w", err)
	}
	if s.MaxRetries != nil {
		if cfg.MaxRetries, err = cast.ToIntE(s.MaxRetries); err != nil {
			return nil, fmt.Errorf("max_retries: %w", err)
		}
	}
	return cfg, nil
}

// seconds accepts a number of seconds or a Go duration string.
func seconds(v any) (time.Duration, error) {
	if v == nil {
		return 0, nil
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

func optionalBool(v any) (bool, error) {
	if v == nil {
		return false, nil
	}
	return cast.ToBoolE(v)
}

// ParseLogLevel converts a case-insensitive level name to an slog.Level.
// The empty string maps to info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
	}
}
