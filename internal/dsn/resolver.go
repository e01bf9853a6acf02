// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"net"
	"strconv"
	"strings"

	errs "clustersql/cli/internal/errors"

	"github.com/mitchellh/mapstructure"
)

// Configuration keys understood by Resolve. Any other key is a passthrough option.
const (
	KeyURL       = "url"
	KeyHost      = "host"
	KeyPort      = "port"
	KeyUser      = "user"
	KeyUsername  = "username"
	KeyPassword  = "password"
	KeyCache     = "cache"
	KeySchema    = "schema"
	KeyUseTLS    = "useTls"
	KeyMapperDir = "mapperDir"
)

// rawConfig is the decoded view of both configuration shapes.
type rawConfig struct {
	URL       string         `mapstructure:"url"`
	Host      string         `mapstructure:"host"`
	Port      int            `mapstructure:"port"`
	User      string         `mapstructure:"user"`
	Username  string         `mapstructure:"username"`
	Password  string         `mapstructure:"password"`
	Cache     string         `mapstructure:"cache"`
	Schema    string         `mapstructure:"schema"`
	UseTLS    bool           `mapstructure:"useTls"`
	MapperDir any            `mapstructure:"mapperDir"`
	Options   map[string]any `mapstructure:",remain"`
}

// DetectShape reports which configuration form raw uses: a non-empty url
// selects the URL form, anything else is structured.
func DetectShape(raw map[string]any) Shape {
	for k, v := range raw {
		if strings.EqualFold(k, KeyURL) {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return ShapeURL
			}
		}
	}
	return ShapeStructured
}

// Resolve normalizes raw configuration into a Descriptor. The mapper
// directory is checked first so a missing one fails before anything else.
func Resolve(raw map[string]any) (*Descriptor, error) {
	var rc rawConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errs.Wrap(errs.InvalidConfig, "build decoder", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, errs.Wrap(errs.InvalidConfig, "decode connection settings", err)
	}

	dirs, err := mapperDirs(rc.MapperDir)
	if err != nil {
		return nil, err
	}

	var d *Descriptor
	switch DetectShape(raw) {
	case ShapeURL:
		d, err = fromURL(&rc)
	default:
		d, err = fromFields(&rc)
	}
	if err != nil {
		return nil, err
	}
	d.MapperDirs = dirs

	if err := validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// fromURL builds a descriptor from the URL form. Options supplied next to the
// URL apply too; the URL's own query parameters win on conflict.
func fromURL(rc *rawConfig) (*Descriptor, error) {
	parts, err := ParseURL(rc.URL)
	if err != nil {
		return nil, err
	}
	opts := copyOptions(rc.Options)
	for k, v := range parts.Params {
		opts[k] = v
	}
	tls := extractTLS(opts)

	return &Descriptor{
		Shape:      ShapeURL,
		Host:       parts.Host,
		Port:       parts.Port,
		Username:   parts.Username,
		Password:   parts.Password,
		Schema:     parts.Schema,
		Cache:      rc.Cache,
		TLSEnabled: rc.UseTLS || tls,
		Options:    opts,
	}, nil
}

// fromFields builds a descriptor from discrete fields. Nothing is parsed
// except an embedded port; options are deep-copied.
func fromFields(rc *rawConfig) (*Descriptor, error) {
	opts := copyOptions(rc.Options)
	tls := extractTLS(opts)

	user := rc.User
	if user == "" {
		user = rc.Username
	}

	if rc.Port < 0 || rc.Port > 65535 {
		return nil, errs.Newf(errs.InvalidConfig, "port %d out of range 1-65535", rc.Port)
	}
	host := strings.TrimSpace(rc.Host)
	port, err := portOf(host)
	if err != nil {
		return nil, errs.Newf(errs.InvalidConfig, "invalid port in host %q", host)
	}
	switch {
	case port == 0 && rc.Port != 0 && host != "":
		host = net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(rc.Port))
		port = rc.Port
	case port != 0 && rc.Port != 0 && port != rc.Port:
		return nil, errs.Newf(errs.InvalidConfig, "host %q conflicts with port %d", host, rc.Port)
	}

	schema := rc.Schema
	if schema == "" {
		schema = rc.Cache
	}

	return &Descriptor{
		Shape:      ShapeStructured,
		Host:       host,
		Port:       port,
		Username:   user,
		Password:   rc.Password,
		Schema:     schema,
		Cache:      rc.Cache,
		TLSEnabled: rc.UseTLS || tls,
		Options:    opts,
	}, nil
}

func validate(d *Descriptor) error {
	if strings.TrimSpace(d.Host) == "" {
		return errs.New(errs.MissingHost, "host is required")
	}
	if strings.TrimSpace(d.Schema) == "" && strings.TrimSpace(d.Cache) == "" {
		return errs.New(errs.MissingSchema, "cache or schema name is required")
	}
	return nil
}

// mapperDirs accepts a single directory or a list of them.
func mapperDirs(v any) ([]string, error) {
	var dirs []string
	switch t := v.(type) {
	case string:
		dirs = append(dirs, t)
	case []string:
		dirs = append(dirs, t...)
	case []any:
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, errs.Newf(errs.InvalidConfig, "mapperDir entries must be strings, got %T", e)
			}
			dirs = append(dirs, s)
		}
	case nil:
	default:
		return nil, errs.Newf(errs.InvalidConfig, "mapperDir must be a string or list, got %T", v)
	}

	out := dirs[:0]
	for _, d := range dirs {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, errs.New(errs.MissingMapperDirectory, "missing mapperDir definition in service settings")
	}
	return out, nil
}
