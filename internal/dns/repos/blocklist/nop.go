package blocklist

import (
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/services/resolver"
)

// NoopBlocklist never blocks anything. Used when the blacklist is disabled.
type NoopBlocklist struct{}

func (n *NoopBlocklist) IsBlocked(name string) domain.BlockDecision {
	return domain.EmptyDecision()
}

var _ resolver.Blocklist = (*NoopBlocklist)(nil)
