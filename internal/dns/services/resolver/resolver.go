package resolver

import (
	"context"
	"net"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

// Resolver is the facade the transport layer calls for every admitted
// query: cache lookup, recursion engine, cache store, response assembly.
type Resolver struct {
	cache              Cache
	recursive          *RecursiveResolver
	logger             log.Logger
	mapFailureServfail bool
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Cache  Cache
	Client UpstreamClient
	Logger log.Logger

	// RootServer overrides the root nameserver the recursion engine starts
	// from. Nil uses the built-in default (198.41.0.4).
	RootServer net.IP

	// MaxNSResolutionDepth overrides the NS-glue sub-resolution depth cap.
	// Zero uses the built-in default (8).
	MaxNSResolutionDepth int

	// MapFailuresToServfail maps resolution failures to RCODE=2 (SERVFAIL)
	// instead of the default RCODE=3 (NXDOMAIN) overload. Default false
	// preserves the historical NXDOMAIN-for-everything behavior.
	MapFailuresToServfail bool
}

// NewResolver constructs a Resolver. A nil Logger defaults to a no-op one.
func NewResolver(opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	var recOpts []RecursiveResolverOption
	if opts.RootServer != nil {
		recOpts = append(recOpts, WithRootServer(opts.RootServer))
	}
	if opts.MaxNSResolutionDepth > 0 {
		recOpts = append(recOpts, WithMaxNSResolutionDepth(opts.MaxNSResolutionDepth))
	}
	return &Resolver{
		cache:              opts.Cache,
		recursive:          NewRecursiveResolver(opts.Client, logger, recOpts...),
		logger:             logger,
		mapFailureServfail: opts.MapFailuresToServfail,
	}
}

// HandleRequest implements DNSResponder: cache lookup on hit, recursion
// engine and cache store on miss, and an error response (NXDOMAIN by
// default, SERVFAIL if configured) on any resolution failure. The default
// is a deliberate overload of NXDOMAIN for any failure to resolve, not only
// a true non-existent name.
func (r *Resolver) HandleRequest(ctx context.Context, hdr domain.Header, q domain.Question, clientAddr net.Addr) domain.DNSResponse {
	now := time.Now()
	key := q.CacheKey()

	if entry, ok := r.cache.Lookup(key, now); ok {
		r.logger.Debug(map[string]any{
			"client": clientAddr.String(),
			"name":   q.Name,
		}, "cache hit")
		return buildResponse(hdr, entry.Answers, entry.Authority, entry.Additional)
	}

	resp, err := r.recursive.Resolve(ctx, q, now)
	if err != nil {
		r.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"name":   q.Name,
			"error":  err.Error(),
		}, "resolution failed")
		return errorResponse(hdr, r.mapFailureServfail)
	}

	r.cache.Store(key, resp.Answers, resp.Authority, resp.Additional, now)
	return buildResponse(hdr, resp.Answers, resp.Authority, resp.Additional)
}

// buildResponse assembles a successful DNSResponse from the resolved
// triple. The codec fills in the wire header (QR=1, RA=1, section counts)
// from this value when encoding the reply; id/opcode/rd come from hdr.
func buildResponse(hdr domain.Header, answers, authority, additional []domain.ResourceRecord) domain.DNSResponse {
	return domain.DNSResponse{
		ID:         hdr.ID,
		RCode:      domain.NOERROR,
		Answers:    answers,
		Authority:  authority,
		Additional: additional,
	}
}

// errorResponse builds a resolution-failure reply with no record sections.
// RCODE is NXDOMAIN unless servfail requests the corrected SERVFAIL mapping.
func errorResponse(hdr domain.Header, servfail bool) domain.DNSResponse {
	if servfail {
		return domain.DNSResponse{ID: hdr.ID, RCode: domain.SERVFAIL}
	}
	return domain.DNSResponse{ID: hdr.ID, RCode: domain.NXDOMAIN}
}

var _ DNSResponder = (*Resolver)(nil)
