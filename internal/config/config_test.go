package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadInvoiceDefaults(t *testing.T) {
	t.Setenv("INVOICE_PREFIX", "")
	t.Setenv("INVOICE_WIDTH", "")
	t.Setenv("STORAGE_TIMEOUT_MS", "")

	cfg := Load()
	assert.Equal(t, "S", cfg.InvoicePrefix)
	assert.Equal(t, 3, cfg.InvoiceWidth)
	assert.Equal(t, 5*time.Second, cfg.StorageTimeout)
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("INVOICE_WIDTH", "0")
	t.Setenv("STORAGE_TIMEOUT_MS", "abc")
	t.Setenv("INVOICE_PREFIX", "INV")

	cfg := Load()
	assert.Equal(t, "INV", cfg.InvoicePrefix)
	assert.Equal(t, 3, cfg.InvoiceWidth)
	assert.Equal(t, 5*time.Second, cfg.StorageTimeout)
}

func TestMediaDriverFollowsCredentials(t *testing.T) {
	t.Setenv("MEDIA_DRIVER", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAEXAMPLE")
	assert.Equal(t, "s3", Load().Media.Driver)

	t.Setenv("AWS_ACCESS_KEY_ID", "")
	assert.Equal(t, "local", Load().Media.Driver)
}
