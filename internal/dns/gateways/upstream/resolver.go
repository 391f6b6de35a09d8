// Package upstream implements the network gateway used to speak to other
// nameservers over UDP: both the handful of fixed root servers the
// recursion engine starts from and the referral nameservers it walks to
// along the way.
package upstream

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/gateways/wire"
	"github.com/haukened/rr-dns/internal/dns/services/resolver"
)

// Error message constants for consistent error handling
const (
	errCodecRequired   = "DNS codec is required"
	errQueryTimeout    = "query timeout after %v"
	errFailedToConnect = "failed to connect: %w"
	errEncodeFailed    = "encode failed: %w"
	errWriteFailed     = "write failed: %w"
	errReadFailed      = "read failed: %w"
)

// udpMaxMessageSize is the maximum size of a single UDP DNS reply this
// client will accept from a nameserver.
const udpMaxMessageSize = 512

// Resolver implements one-hop UDP DNS lookups against a single nameserver
// address at a time, as used by the recursion engine walking referrals from
// the root down. It does not itself recurse or cache; it only speaks the
// wire protocol to whichever address it is told to query.
type Resolver struct {
	timeout time.Duration // Default timeout for DNS queries
	codec   wire.DNSCodec // Codec for encoding/decoding DNS messages
	dial    DialFunc      // Dial function to create network connections
	nextID  func() uint16 // Generates the 16-bit query ID for each outbound query
}

// DialFunc defines a function type for establishing a network connection.
// It takes a context for cancellation, the network type (e.g., "tcp", "udp"),
// and the address to connect to, returning a net.Conn and an error if any occurs.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options defines configuration parameters for the upstream DNS resolver.
type Options struct {
	// required parameters
	Timeout time.Duration
	Codec   wire.DNSCodec
	// options to inject for testing purposes
	Dial   DialFunc
	NextID func() uint16
}

// NewResolver creates a new upstream resolver with the specified options.
// Returns an error if the codec is not provided. Sets default timeout to 5
// seconds and a default dial function / ID generator if not provided.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf(errCodecRequired)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.NextID == nil {
		opts.NextID = randomQueryID
	}
	return &Resolver{
		timeout: opts.Timeout,
		codec:   opts.Codec,
		dial:    opts.Dial,
		nextID:  opts.NextID,
	}, nil
}

// randomQueryID returns a cryptographically-unimportant but unpredictable
// 16-bit query ID, used to guard against off-path response spoofing.
func randomQueryID() uint16 {
	var b [2]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// ensureContextDeadline ensures the context has a deadline, adding the resolver's default timeout if needed.
func (r *Resolver) ensureContextDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, r.timeout)
	}
	return ctx, nil
}

// setTimeout sets the timeout duration for DNS queries.
// just for testing purposes, not part of the public API.
func (r *Resolver) setTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Resolve sends q to the nameserver at addr:53 over UDP with a fresh random
// query id and the recursion desired bit set, and returns its response.
func (r *Resolver) Resolve(ctx context.Context, addr net.IP, q domain.Question, now time.Time) (domain.DNSResponse, error) {
	ctx, cancel := r.ensureContextDeadline(ctx)
	if cancel != nil {
		defer cancel()
	}
	return r.queryServerWithContext(ctx, net.JoinHostPort(addr.String(), "53"), q, now)
}

// queryServerWithContext performs a single DNS query against server with context cancellation support.
func (r *Resolver) queryServerWithContext(ctx context.Context, server string, q domain.Question, now time.Time) (domain.DNSResponse, error) {
	conn, err := r.dial(ctx, "udp", server)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf(errFailedToConnect, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return domain.DNSResponse{}, fmt.Errorf("failed to set connection deadline: %w", err)
		}
	}

	hdr := domain.Header{ID: r.nextID(), RD: true, QDCount: 1}
	queryBytes, err := r.codec.EncodeQuery(hdr, q)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf(errEncodeFailed, err)
	}

	type result struct {
		response domain.DNSResponse
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		if _, err := conn.Write(queryBytes); err != nil {
			resultChan <- result{err: fmt.Errorf(errWriteFailed, err)}
			return
		}

		buffer := make([]byte, udpMaxMessageSize)
		n, err := conn.Read(buffer)
		if err != nil {
			resultChan <- result{err: fmt.Errorf(errReadFailed, err)}
			return
		}

		_, response, err := r.codec.DecodeResponse(buffer[:n], hdr.ID, now)
		resultChan <- result{response: response, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.response, res.err
	case <-ctx.Done():
		return domain.DNSResponse{}, fmt.Errorf(errQueryTimeout, r.timeout)
	}
}

var _ resolver.UpstreamClient = (*Resolver)(nil)
