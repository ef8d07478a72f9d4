// Package config loads qwery's engine-wide defaults and backs the
// WITH PROPERTIES <path> hint clause (spec §4.3). Modeled on
// bunbase/pkg/config's viper-based env+file loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Defaults holds engine-wide configuration, overridable via QWERY_-prefixed
// environment variables or a .qwery.yaml / .env file in the working directory.
type Defaults struct {
	LineEnding      string // "LF" (default) or "CRLF"
	GzipLevel       int    // 0-9, default = gzip.DefaultCompression (-1 maps to 6)
	JDBCMaxOpenConn int
	S3UseSSL        bool
}

// Load reads engine defaults from the environment and an optional config
// file, falling back to hard-coded defaults for anything unset.
func Load() (*Defaults, error) {
	v := viper.New()
	v.SetConfigName(".qwery")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("QWERY")
	v.AutomaticEnv()

	v.SetDefault("line_ending", "LF")
	v.SetDefault("gzip_level", 6)
	v.SetDefault("jdbc_max_open_conn", 4)
	v.SetDefault("s3_use_ssl", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	return &Defaults{
		LineEnding:      strings.ToUpper(v.GetString("line_ending")),
		GzipLevel:       v.GetInt("gzip_level"),
		JDBCMaxOpenConn: v.GetInt("jdbc_max_open_conn"),
		S3UseSSL:        v.GetBool("s3_use_ssl"),
	}, nil
}

// LoadProperties loads a WITH PROPERTIES <path> key/value file. Supports
// .properties (key=value per line), .env, .yaml/.yml, and .json via viper's
// format detection; falls back to simple key=value parsing when the
// extension is unrecognized (e.g. a bare ".properties" file).
func LoadProperties(path string) (map[string]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err == nil {
		out := make(map[string]string)
		for _, key := range v.AllKeys() {
			out[key] = v.GetString(key)
		}
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read properties file %s: %w", path, err)
	}
	out := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out, nil
}

// BoolProp parses a property value as a boolean, defaulting to def on error.
func BoolProp(props map[string]string, key string, def bool) bool {
	v, ok := props[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
