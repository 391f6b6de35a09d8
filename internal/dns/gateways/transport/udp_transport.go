package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/gateways/wire"
	"github.com/haukened/rr-dns/internal/dns/services/resolver"
)

// UDPTransport implements ServerTransport for standard DNS over UDP (RFC 1035).
// It handles UDP socket management, packet reception/transmission, wire format
// conversion, and the admission pipeline (size cap, rate limit, RD-bit gate,
// blacklist) in front of the service layer.
type UDPTransport struct {
	addr      string
	conn      *net.UDPConn
	codec     wire.DNSCodec
	logger    log.Logger
	blocklist resolver.Blocklist
	limiter   *rateLimiter

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// NewUDPTransport creates a new UDP transport instance. blocklist may be nil,
// in which case the blacklist admission step is skipped.
func NewUDPTransport(addr string, codec wire.DNSCodec, logger log.Logger, blocklist resolver.Blocklist) *UDPTransport {
	return &UDPTransport{
		addr:      addr,
		codec:     codec,
		logger:    logger,
		blocklist: blocklist,
		limiter:   newRateLimiter(),
		stopCh:    make(chan struct{}),
	}
}

// Start begins listening for UDP DNS queries on the configured address.
func (t *UDPTransport) Start(ctx context.Context, handler resolver.DNSResponder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport started")

	go t.listenLoop(ctx, handler)
	go t.sweepLoop(ctx)

	return nil
}

// Stop gracefully shuts down the UDP transport.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopCh)

	var closeErr error
	if t.conn != nil {
		closeErr = t.conn.Close()
		if closeErr != nil {
			t.logger.Warn(map[string]any{
				"error": closeErr.Error(),
			}, "Error closing UDP connection")
		}
	}

	t.running = false

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")

	return closeErr
}

// Address returns the network address the transport is bound to.
func (t *UDPTransport) Address() string {
	return t.addr
}

// sweepLoop periodically evicts stale rate-limit table entries.
func (t *UDPTransport) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(rateLimitSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case now := <-ticker.C:
			t.limiter.sweep(now)
		}
	}
}

// listenLoop continuously listens for UDP packets and handles them.
func (t *UDPTransport) listenLoop(ctx context.Context, handler resolver.DNSResponder) {
	buffer := make([]byte, maxMessageSize+1)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug(nil, "UDP transport stopping due to context cancellation")
			return
		case <-t.stopCh:
			t.logger.Debug(nil, "UDP transport stopping due to stop signal")
			return
		default:
			n, clientAddr, err := t.conn.ReadFromUDP(buffer)
			if err != nil {
				t.mu.RLock()
				running := t.running
				t.mu.RUnlock()

				if !running {
					return
				}

				t.logger.Warn(map[string]any{
					"error": err.Error(),
				}, "Failed to read UDP packet")
				continue
			}

			packet := make([]byte, n)
			copy(packet, buffer[:n])
			go t.handlePacket(ctx, packet, clientAddr, handler)
		}
	}
}

// handlePacket runs the admission pipeline and, if the datagram is
// admitted, dispatches it to the service layer for resolution.
func (t *UDPTransport) handlePacket(ctx context.Context, data []byte, clientAddr *net.UDPAddr, handler resolver.DNSResponder) {
	if len(data) > maxMessageSize {
		t.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"size":   len(data),
		}, "dropped oversized datagram")
		return
	}

	if !t.limiter.allow(clientAddr.IP.String(), time.Now()) {
		t.logger.Warn(map[string]any{
			"client": clientAddr.String(),
		}, "dropped datagram exceeding rate limit")
		return
	}

	hdr, q, err := t.codec.DecodeQuery(data)
	if err != nil {
		t.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
			"size":   len(data),
		}, "failed to decode DNS query")
		return
	}

	if !hdr.RD {
		t.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"name":   q.Name,
		}, "dropped datagram with recursion desired bit clear")
		return
	}

	if t.blocklist != nil {
		if decision := t.blocklist.IsBlocked(q.Name); decision.IsBlocked() {
			t.logger.Warn(map[string]any{
				"client": clientAddr.String(),
				"name":   q.Name,
				"rule":   decision.MatchedRule,
			}, "dropped datagram for blacklisted name")
			return
		}
	}

	t.logger.Debug(map[string]any{
		"client":   clientAddr.String(),
		"query_id": hdr.ID,
		"name":     q.Name,
		"type":     q.Type,
	}, "received DNS query")

	response := handler.HandleRequest(ctx, hdr, q, clientAddr)

	responseData, err := t.codec.EncodeResponse(hdr, q, response)
	if err != nil {
		t.logger.Error(map[string]any{
			"client":   clientAddr.String(),
			"query_id": hdr.ID,
			"error":    err.Error(),
		}, "failed to encode DNS response")
		return
	}

	if _, err := t.conn.WriteToUDP(responseData, clientAddr); err != nil {
		t.logger.Error(map[string]any{
			"client":   clientAddr.String(),
			"query_id": hdr.ID,
			"error":    err.Error(),
		}, "failed to send DNS response")
		return
	}

	t.logger.Debug(map[string]any{
		"client":   clientAddr.String(),
		"query_id": hdr.ID,
		"rcode":    response.RCode,
		"answers":  len(response.Answers),
		"size":     len(responseData),
	}, "sent DNS response")
}
