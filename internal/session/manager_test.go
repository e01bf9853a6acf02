// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"clustersql/cli/internal/cluster"
	"clustersql/cli/internal/cluster/clustertest"
	"clustersql/cli/internal/dsn"
	errs "clustersql/cli/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu      sync.Mutex
	states  []cluster.State
	reasons []error
}

func (r *recorder) listen(s cluster.State, reason error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	r.reasons = append(r.reasons, reason)
}

func testDescriptor() *dsn.Descriptor {
	return &dsn.Descriptor{
		Shape:    dsn.ShapeURL,
		Host:     "node1.cluster:10800",
		Port:     10800,
		Username: "ignite",
		Password: "s3cret",
		Schema:   "PUBLIC",
		Cache:    "PersonCache",
		Options:  map[string]any{"timeout": 5000, "nested": map[string]any{"a": 1}},
	}
}

func newTestManager(client cluster.Client) (*Manager, *recorder, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rec := &recorder{}
	return NewManager(client, logger, WithListener(rec.listen)), rec, &buf
}

func TestConnect(t *testing.T) {
	client := &clustertest.Client{}
	m, rec, logs := newTestManager(client)
	desc := testDescriptor()

	require.NoError(t, m.Connect(context.Background(), desc))

	assert.Equal(t, cluster.Connected, m.State())
	assert.Equal(t, []cluster.State{cluster.Connecting, cluster.Connected}, rec.states)
	assert.Equal(t, []string{"PersonCache"}, client.CacheNames())
	assert.Equal(t, []cluster.CacheConfig{{SQLSchema: "PUBLIC"}}, client.CacheConfigs())

	cache, err := m.Cache()
	require.NoError(t, err)
	assert.Equal(t, "PersonCache", cache.Name())

	assert.Equal(t, 2, strings.Count(logs.String(), "session state changed"))
	assert.Contains(t, logs.String(), "state=connected")
	assert.NotContains(t, logs.String(), "s3cret")
	assert.Equal(t, "***", m.Descriptor().Password)
}

func TestConnect_EchoesDescriptor(t *testing.T) {
	client := &clustertest.Client{}
	m, _, _ := newTestManager(client)
	desc := testDescriptor()

	require.NoError(t, m.Connect(context.Background(), desc))

	cfgs := client.Configs()
	require.Len(t, cfgs, 1)
	cfg := cfgs[0]
	assert.Equal(t, desc.Host, cfg.Address)
	assert.Equal(t, "node1.cluster", cfg.Endpoint)
	assert.Equal(t, 10800, cfg.Port)
	assert.Equal(t, desc.Username, cfg.Username)
	assert.Equal(t, desc.Password, cfg.Password)
	assert.Equal(t, desc.Options, cfg.Options)

	cfg.Options["nested"].(map[string]any)["a"] = 2
	assert.Equal(t, 1, desc.Options["nested"].(map[string]any)["a"])
}

func TestConnect_Twice(t *testing.T) {
	client := &clustertest.Client{}
	m, _, _ := newTestManager(client)
	require.NoError(t, m.Connect(context.Background(), testDescriptor()))

	err := m.Connect(context.Background(), testDescriptor())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.True(t, errs.IsKind(err, errs.AlreadyConnected))
	assert.Equal(t, 1, client.ConnectCalls())
}

func TestConnect_FailureIsTerminal(t *testing.T) {
	refused := errors.New("dial tcp 10.0.0.1:10800: connection refused")
	client := &clustertest.Client{ConnectErr: refused}
	m, rec, logs := newTestManager(client)

	err := m.Connect(context.Background(), testDescriptor())
	require.Error(t, err)
	assert.ErrorIs(t, err, refused)
	assert.True(t, errs.IsKind(err, errs.ConnectFailed))

	var ce *ConnectError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "connect", ce.Stage)

	assert.Equal(t, cluster.Failed, m.State())
	assert.Equal(t, []cluster.State{cluster.Connecting, cluster.Failed}, rec.states)
	assert.Equal(t, err, rec.reasons[1])
	assert.Contains(t, logs.String(), "state=failed")
	assert.Empty(t, client.CacheNames())

	err = m.Connect(context.Background(), testDescriptor())
	assert.ErrorIs(t, err, ErrSessionFailed)
	assert.Equal(t, 1, client.ConnectCalls())

	assert.NoError(t, m.Disconnect(context.Background()))
	assert.Equal(t, cluster.Failed, m.State())
}

func TestConnect_CacheBindFailureReleasesClient(t *testing.T) {
	denied := errors.New("permission denied for database")
	client := &clustertest.Client{CacheErr: denied}
	m, _, _ := newTestManager(client)

	err := m.Connect(context.Background(), testDescriptor())
	assert.ErrorIs(t, err, denied)

	var ce *ConnectError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "bind cache", ce.Stage)
	assert.Equal(t, 1, client.Disconnects())
	assert.Equal(t, cluster.Failed, m.State())

	_, err = m.Cache()
	assert.True(t, errs.IsKind(err, errs.NotConnected))
}

func TestDisconnect(t *testing.T) {
	client := &clustertest.Client{DisconnectErr: errors.New("socket already closed")}
	m, rec, logs := newTestManager(client)

	assert.NoError(t, m.Disconnect(context.Background()))
	assert.Equal(t, 0, client.Disconnects())

	require.NoError(t, m.Connect(context.Background(), testDescriptor()))
	assert.NoError(t, m.Disconnect(context.Background()))
	assert.Equal(t, 1, client.Disconnects())
	assert.Equal(t, cluster.Disconnected, m.State())
	assert.Equal(t, cluster.Disconnected, rec.states[len(rec.states)-1])
	assert.Contains(t, logs.String(), "socket already closed")

	_, err := m.Cache()
	assert.True(t, errs.IsKind(err, errs.NotConnected))

	assert.NoError(t, m.Disconnect(context.Background()))
	assert.Equal(t, 1, client.Disconnects())

	require.NoError(t, m.Connect(context.Background(), testDescriptor()))
	assert.Equal(t, cluster.Connected, m.State())
}

func TestCache_BeforeConnect(t *testing.T) {
	m, _, _ := newTestManager(&clustertest.Client{})
	_, err := m.Cache()
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.NotConnected))
	assert.Contains(t, err.Error(), "disconnected")
}

func TestConnect_Concurrent(t *testing.T) {
	client := &clustertest.Client{}
	m, _, _ := newTestManager(client)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.Connect(context.Background(), testDescriptor())
		}()
	}
	wg.Wait()
	close(results)

	var ok, already int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyConnected):
			already++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, already)
	assert.Equal(t, 1, client.ConnectCalls())
}
