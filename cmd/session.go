// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"

	"clustersql/cli/internal/adapter"
	"clustersql/cli/internal/keychain"
	"clustersql/cli/internal/sqlexec"
)

// hostServiceName is reported to the adapter as the host service.
const hostServiceName = "clustersql-cli"

// connectionConfig returns the adapter configuration from cfg, falling back
// to the keychain for the connection URL and for the password.
func connectionConfig() map[string]any {
	raw := cfg.Raw()
	if cfg.URL != "" {
		return raw
	}

	km, err := keychain.GetManager()
	if err != nil {
		logger.Debug("keychain unavailable", "error", err)
		return raw
	}
	if cfg.Host == "" {
		if url, err := km.LoadConnectionURL(); err == nil {
			raw["url"] = url
		}
		return raw
	}
	if cfg.Password == "" && cfg.User != "" {
		if pw, err := km.LoadPassword(cfg.User, cfg.Host); err == nil {
			raw["password"] = pw
		}
	}
	return raw
}

// openAdapter builds and connects an adapter for raw. The caller disconnects.
func openAdapter(ctx context.Context, raw map[string]any, opts ...adapter.Option) (*adapter.Adapter, error) {
	opts = append([]adapter.Option{
		adapter.WithLogger(logger),
		adapter.WithExecutorOptions(
			sqlexec.WithPageSize(cfg.Query.PageSize),
			sqlexec.WithTimeout(cfg.Query.Timeout),
		),
	}, opts...)

	a := adapter.New(raw, opts...)
	a.Init(adapter.HostContext{ServiceName: hostServiceName})
	err := withSpinner("connecting to cluster", func() error {
		return a.Connect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
