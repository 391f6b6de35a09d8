package resolver

import (
	"context"
	"net"
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/repos/dnscache"
)

// UpstreamClient defines an interface for DNS upstream resolution.
// Implementations send a single question to a single upstream nameserver
// address and return the corresponding DNS response.
type UpstreamClient interface {
	Resolve(ctx context.Context, addr net.IP, q domain.Question, now time.Time) (domain.DNSResponse, error)
}

// Blocklist defines an interface for checking whether a question's name is
// blocked. Implementations decide on exact-match or suffix-match semantics.
type Blocklist interface {
	IsBlocked(name string) domain.BlockDecision
}

// Cache defines the interface for the resolver's answer cache. It stores the
// complete (answers, authority, additional) triple for a question under a
// flat TTL, independent of the TTLs carried by individual records.
type Cache interface {
	Store(key string, answers, authority, additional []domain.ResourceRecord, now time.Time)
	Lookup(key string, now time.Time) (dnscache.Entry, bool)
	Delete(key string)
	Len() int
	Keys() []string
}

// DNSResponder defines an interface for handling DNS queries and generating
// responses. Implementations process DNS requests, abstracting away network
// protocol details. The HandleRequest method receives the query, client
// address, and context, and returns a DNS response.
type DNSResponder interface {
	// HandleRequest processes a DNS query and returns a DNS response.
	// The transport handles all network protocol details - the handler only sees domain objects.
	HandleRequest(ctx context.Context, hdr domain.Header, q domain.Question, clientAddr net.Addr) domain.DNSResponse
}
