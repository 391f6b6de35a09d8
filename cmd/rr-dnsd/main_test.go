package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DNS_ENV", "DNS_LOG_LEVEL", "DNS_RESOLVER_PORT", "DNS_RESOLVER_HOST",
		"DNS_RESOLVER_ROOT", "DNS_RESOLVER_DEPTH", "DNS_RESOLVER_CACHE_SIZE",
		"DNS_RESOLVER_SERVFAIL", "DNS_LOG_FILE",
		"DNS_BLOCKLIST_DIR", "DNS_BLOCKLIST_DB", "DNS_BLOCKLIST_STRATEGY",
		"DNS_BLOCKLIST_CACHE_SIZE",
	} {
		_ = os.Unsetenv(k)
	}
}

// TestApplication_Integration tests the full application lifecycle
func TestApplication_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	clearEnv(t)

	tempDir := t.TempDir()

	// Find available port
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	require.NoError(t, os.Setenv("DNS_RESOLVER_PORT", fmt.Sprintf("%d", port)))
	require.NoError(t, os.Setenv("DNS_LOG_LEVEL", "debug"))
	require.NoError(t, os.Setenv("DNS_RESOLVER_CACHE_SIZE", "100"))
	require.NoError(t, os.Setenv("DNS_BLOCKLIST_DB", filepath.Join(tempDir, "blocklist.db")))
	defer clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appErr := make(chan error, 1)
	go func() {
		appErr <- app.Run(ctx)
	}()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-timeout:
			t.Fatal("Server failed to start within timeout")
		case err := <-appErr:
			if err != nil {
				t.Fatalf("Server failed to start: %v", err)
			}
		default:
			conn, err := net.Dial("udp", fmt.Sprintf("localhost:%d", port))
			if err == nil {
				require.NoError(t, conn.Close())
				goto serverStarted
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

serverStarted:
	cancel()

	select {
	case err := <-appErr:
		assert.NoError(t, err, "Application should shutdown gracefully")
	case <-time.After(5 * time.Second):
		t.Fatal("Application failed to shutdown within timeout")
	}
}

// TestBuildApplication_ConfigurationVariations tests different configurations
func TestBuildApplication_ConfigurationVariations(t *testing.T) {
	tests := []struct {
		name     string
		setupEnv func(t *testing.T)
		wantErr  bool
	}{
		{
			name: "minimal valid config",
			setupEnv: func(t *testing.T) {
				require.NoError(t, os.Setenv("DNS_BLOCKLIST_DB", filepath.Join(t.TempDir(), "bl.db")))
			},
			wantErr: false,
		},
		{
			name: "invalid root server address",
			setupEnv: func(t *testing.T) {
				require.NoError(t, os.Setenv("DNS_BLOCKLIST_DB", filepath.Join(t.TempDir(), "bl.db")))
				require.NoError(t, os.Setenv("DNS_RESOLVER_ROOT", "not-an-ip"))
			},
			wantErr: true,
		},
		{
			name: "response cache disabled",
			setupEnv: func(t *testing.T) {
				require.NoError(t, os.Setenv("DNS_BLOCKLIST_DB", filepath.Join(t.TempDir(), "bl.db")))
				require.NoError(t, os.Setenv("DNS_RESOLVER_CACHE_SIZE", "0"))
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			defer clearEnv(t)
			tt.setupEnv(t)

			cfg, err := config.Load()
			if err != nil {
				if tt.wantErr {
					return
				}
				t.Fatalf("Config load failed: %v", err)
			}

			app, err := buildApplication(cfg)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, app)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, app)
			}
		})
	}
}

// TestApplication_ComponentIntegration tests that all components work together
func TestApplication_ComponentIntegration(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()

	require.NoError(t, os.Setenv("DNS_RESOLVER_CACHE_SIZE", "50"))
	require.NoError(t, os.Setenv("DNS_BLOCKLIST_DB", filepath.Join(tempDir, "blocklist.db")))
	defer clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(cfg)
	require.NoError(t, err)

	assert.NotNil(t, app.config)
	assert.NotNil(t, app.transport)
	assert.NotNil(t, app.resolver)

	assert.Equal(t, "198.41.0.4", app.config.Resolver.Root)
	assert.Equal(t, 50, app.config.Resolver.Cache.Size)
}

// TestBuildBlocklist_DefaultRulesMatchCanonicalQueries guards against the
// seeded default rules being stored in a form that never matches a live
// query's canonical (trailing-dot) name.
func TestBuildBlocklist_DefaultRulesMatchCanonicalQueries(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	require.NoError(t, os.Setenv("DNS_BLOCKLIST_DB", filepath.Join(tempDir, "blocklist.db")))
	defer clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	bl, err := buildBlocklist(cfg, log.NewNoopLogger())
	require.NoError(t, err)

	for _, name := range cfg.Blocklist.DefaultBlocked {
		decision := bl.IsBlocked(name + ".")
		assert.True(t, decision.Blocked, "expected %q to be blocked", name)
	}
}
