package resolver

import (
	"context"
	"net"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

// rootServer is the single root nameserver the recursion engine starts
// every resolution from. Real root operators run many; the reference
// implementation hardcodes one, and this keeps that behavior.
const rootServer = "198.41.0.4"

// nameserverTimeout bounds a single UDP receive from one candidate
// nameserver. It does not bound the resolution as a whole.
const nameserverTimeout = 5 * time.Second

// maxNSResolutionDepth bounds how many levels of NS-name-to-IP sub-resolution
// the engine will perform when a referral carries no usable glue, preventing
// unbounded stack growth from a cycle of NS records that all lack glue.
const maxNSResolutionDepth = 8

// maxReferralSteps bounds the number of referrals a single top-level
// resolution will follow, guarding against a misbehaving or hostile
// nameserver that refers the engine to itself indefinitely.
const maxReferralSteps = 20

// ResolutionFailureError is returned when the recursion engine exhausts its
// candidate nameservers without producing an answer.
type ResolutionFailureError struct {
	Reason string
}

func (e *ResolutionFailureError) Error() string { return "dns: resolution failed: " + e.Reason }

// RecursiveResolver resolves a single question against the authoritative
// DNS hierarchy, starting at the root and following referrals down.
type RecursiveResolver struct {
	client     UpstreamClient
	logger     log.Logger
	root       net.IP
	maxNSDepth int
}

// RecursiveResolverOption configures optional RecursiveResolver parameters.
type RecursiveResolverOption func(*RecursiveResolver)

// WithRootServer overrides the default root nameserver address.
func WithRootServer(ip net.IP) RecursiveResolverOption {
	return func(r *RecursiveResolver) { r.root = ip }
}

// WithMaxNSResolutionDepth overrides the default NS-glue sub-resolution depth cap.
func WithMaxNSResolutionDepth(depth int) RecursiveResolverOption {
	return func(r *RecursiveResolver) { r.maxNSDepth = depth }
}

// NewRecursiveResolver constructs a RecursiveResolver. If logger is nil, a
// no-op logger is used. Defaults the root server to 198.41.0.4 and the
// NS-glue resolution depth cap to 8; both can be overridden with options.
func NewRecursiveResolver(client UpstreamClient, logger log.Logger, opts ...RecursiveResolverOption) *RecursiveResolver {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	r := &RecursiveResolver{
		client:     client,
		logger:     logger,
		root:       net.ParseIP(rootServer),
		maxNSDepth: maxNSResolutionDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the authoritative hierarchy for q, starting at the root
// nameserver, and returns the full answer/authority/additional triple.
func (r *RecursiveResolver) Resolve(ctx context.Context, q domain.Question, now time.Time) (domain.DNSResponse, error) {
	return r.resolveFrom(ctx, []net.IP{r.root}, q, now, 0)
}

// resolveNSName resolves a single NS target name to its A records by
// recursing from the root, one level deeper than the caller.
func (r *RecursiveResolver) resolveNSName(ctx context.Context, name string, now time.Time, depth int) (domain.DNSResponse, error) {
	nsQuestion, err := domain.NewQuestion(name, domain.RRTypeA, domain.RRClassIN)
	if err != nil {
		return domain.DNSResponse{}, err
	}
	return r.resolveFrom(ctx, []net.IP{r.root}, nsQuestion, now, depth+1)
}

// resolveFrom runs the per-step referral loop starting from servers. depth
// tracks how many levels of NS-glue sub-resolution have occurred so far on
// this call chain, not how many referrals have been followed.
func (r *RecursiveResolver) resolveFrom(ctx context.Context, servers []net.IP, q domain.Question, now time.Time, depth int) (domain.DNSResponse, error) {
	for step := 0; step < maxReferralSteps; step++ {
		if len(servers) == 0 {
			return domain.DNSResponse{}, &ResolutionFailureError{Reason: "no candidate nameservers"}
		}

		var referralNames []string
		var referralGlue []domain.ResourceRecord
		referred := false

		for _, ns := range servers {
			stepCtx, cancel := context.WithTimeout(ctx, nameserverTimeout)
			resp, err := r.client.Resolve(stepCtx, ns, q, now)
			cancel()
			if err != nil {
				r.logger.Warn(map[string]any{
					"nameserver": ns.String(),
					"name":       q.Name,
					"error":      err.Error(),
				}, "nameserver query failed, trying next")
				continue
			}

			if len(resp.Answers) > 0 {
				return resp, nil
			}
			if len(resp.Authority) > 0 {
				referralNames = extractNSNames(resp.Authority)
				referralGlue = resp.Additional
				referred = true
				break
			}
			// No answers and no authority: this nameserver has nothing more
			// to offer for this question. Try the next candidate.
			r.logger.Warn(map[string]any{
				"nameserver": ns.String(),
				"name":       q.Name,
			}, "nameserver returned no answer and no referral")
		}

		if !referred {
			return domain.DNSResponse{}, &ResolutionFailureError{Reason: "candidate nameservers exhausted without progress"}
		}

		next, err := r.resolveNSAddrs(ctx, referralNames, referralGlue, now, depth)
		if err != nil || len(next) == 0 {
			return domain.DNSResponse{}, &ResolutionFailureError{Reason: "referral produced no usable nameserver addresses"}
		}
		servers = next
	}
	return domain.DNSResponse{}, &ResolutionFailureError{Reason: "too many referral steps"}
}

// extractNSNames returns the decoded target name of every NS record in authority.
func extractNSNames(authority []domain.ResourceRecord) []string {
	var names []string
	for _, rr := range authority {
		if rr.Type != domain.RRTypeNS {
			continue
		}
		if rr.Text != "" {
			names = append(names, rr.Text)
		}
	}
	return names
}

// resolveNSAddrs resolves each NS target name to an IP address, preferring
// glue (A records in additional matching the name) and otherwise recursing
// from the root to resolve the name itself, bounded by maxNSResolutionDepth.
func (r *RecursiveResolver) resolveNSAddrs(ctx context.Context, names []string, glue []domain.ResourceRecord, now time.Time, depth int) ([]net.IP, error) {
	glueByName := make(map[string][]net.IP)
	for _, rr := range glue {
		if rr.Type != domain.RRTypeA {
			continue
		}
		ip := net.ParseIP(rr.Text)
		if ip == nil {
			continue
		}
		glueByName[rr.Name] = append(glueByName[rr.Name], ip)
	}

	var addrs []net.IP
	for _, name := range names {
		if ips, ok := glueByName[name]; ok {
			addrs = append(addrs, ips...)
			continue
		}

		if depth >= r.maxNSDepth {
			r.logger.Warn(map[string]any{
				"ns_name": name,
				"depth":   depth,
			}, "skipping NS glue resolution, depth limit reached")
			continue
		}

		resp, err := r.resolveNSName(ctx, name, now, depth)
		if err != nil {
			r.logger.Warn(map[string]any{
				"ns_name": name,
				"error":   err.Error(),
			}, "failed to resolve nameserver address")
			continue
		}

		for _, rr := range resp.Answers {
			if rr.Type != domain.RRTypeA {
				continue
			}
			if ip := net.ParseIP(rr.Text); ip != nil {
				addrs = append(addrs, ip)
			}
		}
	}
	return addrs, nil
}
