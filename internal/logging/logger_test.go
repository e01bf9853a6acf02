// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	errs "clustersql/cli/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestMaskingHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil))).
		With("url", "ignite://u:topsecret@h:10800/S")

	logger.Info("connect ignite://u:hunter2@h/S",
		"error", errors.New("dial ignite://u:hunter2@h/S: refused"),
		slog.Group("cfg", "password", "password=hunter2"),
		"rows", 3,
	)

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "topsecret")
	assert.Contains(t, out, `"rows":3`)
	assert.Contains(t, out, "ignite://u:***@h/S")
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Options{Level: "warn", JSON: true, Writer: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "url", "ignite://u:pw@h/S")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.NotContains(t, out, ":pw@")
}

func TestParseConnectError(t *testing.T) {
	tests := []struct {
		msg  string
		want ConnectErrorType
	}{
		{"dial tcp 127.0.0.1:5432: connect: connection refused", ConnectErrorRefused},
		{"FATAL: password authentication failed (SQLSTATE 28P01)", ConnectErrorAuth},
		{"context deadline exceeded", ConnectErrorTimeout},
		{"tls: failed to verify certificate", ConnectErrorTLS},
		{"dial tcp: lookup nowhere.invalid: no such host", ConnectErrorDNS},
		{"something odd", ConnectErrorUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseConnectError(tt.msg), tt.msg)
	}
}

func TestFormatError(t *testing.T) {
	err := errs.Wrap(errs.ConnectFailed, "connect", errors.New("dial ignite://u:pw@h/S: connection refused"))
	out := FormatError(err)
	assert.Contains(t, out, "Connection Failed")
	assert.Contains(t, out, "Nothing accepted the connection")
	assert.False(t, strings.Contains(out, ":pw@"))

	assert.Contains(t, FormatError(errs.New(errs.MissingMapperDirectory, "none")), "No Mapper Directory")
	assert.Equal(t, "", FormatError(nil))
}
