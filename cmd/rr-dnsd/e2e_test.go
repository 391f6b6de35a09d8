package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haukened/rr-dns/internal/dns/config"
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/gateways/wire"
	"github.com/stretchr/testify/require"
)

// TestE2E_DNSResolution starts the real application and sends a wire-encoded
// query over UDP, verifying a well-formed reply comes back.
func TestE2E_DNSResolution(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	tempDir := t.TempDir()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	clearEnv(t)
	require.NoError(t, os.Setenv("DNS_RESOLVER_PORT", fmt.Sprintf("%d", port)))
	require.NoError(t, os.Setenv("DNS_LOG_LEVEL", "error"))
	require.NoError(t, os.Setenv("DNS_BLOCKLIST_DB", filepath.Join(tempDir, "blocklist.db")))
	defer clearEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}

	app, err := buildApplication(cfg)
	if err != nil {
		t.Fatal(err)
	}

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
			t.Fatal("Server failed to start")
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
	codec := wire.NewUDPCodec(nil)
	q, err := domain.NewQuestion("example.com.", domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)
	hdr := domain.Header{ID: 1234, RD: true, QDCount: 1}
	payload, err := codec.EncodeQuery(hdr, q)
	require.NoError(t, err)

	conn, err := net.Dial("udp", fmt.Sprintf("localhost:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(3*time.Second)))
	_, err = conn.Write(payload)
	require.NoError(t, err)

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err, "expected a reply from the server even on resolution failure")

	respHdr, _, err := codec.DecodeResponse(buf[:n], hdr.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, hdr.ID, respHdr.ID)

	cancel()
	select {
	case err := <-appErr:
		if err != nil {
			t.Errorf("Application shutdown error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Application failed to shutdown")
	}
}
