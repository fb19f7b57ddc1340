package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirpos/backend/internal/config"
	"kasirpos/backend/internal/domain"
	"kasirpos/backend/internal/service"
	"kasirpos/backend/internal/store/memory"
)

func TestValidateSecurityConfig(t *testing.T) {
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: "short"}))
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", BootstrapAdminPass: "pw"}))
	assert.NoError(t, validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}))
}

func TestOpenBackendsFallsBackToMemory(t *testing.T) {
	b, err := openBackends(context.Background(), config.Config{
		RedisAddr: "127.0.0.1:1",
		Media:     config.MediaConfig{Driver: "local"},
	})
	require.NoError(t, err)
	defer b.Close(context.Background())

	_, ok := b.repo.(*memory.Store)
	assert.True(t, ok)
	assert.NotNil(t, b.invoices)
	assert.NotNil(t, b.media)
}

func TestCounterCommandsOutput(t *testing.T) {
	repo := memory.New()
	svc := service.New(repo, nil, nil, service.Options{})
	ctx := service.WithActor(context.Background(), cliActor)

	var out bytes.Buffer
	require.NoError(t, printCounterStatus(ctx, svc, &out))
	assert.Contains(t, out.String(), "next invoice: S-001")
	assert.Contains(t, out.String(), "recorded sales: 0")

	out.Reset()
	require.NoError(t, initCounter(ctx, svc, &out))
	assert.Equal(t, "current sequence: 0\n", out.String())
	assert.Equal(t, domain.RoleAdmin, cliActor.Role)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["counter"])
}
