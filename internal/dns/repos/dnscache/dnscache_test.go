package dnscache

import (
	"testing"
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
)

func TestInvalidCacheSize(t *testing.T) {
	_, err := New(-1)
	if err == nil {
		t.Errorf("expected error for negative cache size, got nil")
	}
}

func newTestRR(t *testing.T, name string, rtype domain.RRType, now time.Time) domain.ResourceRecord {
	t.Helper()
	rr, err := domain.NewCachedResourceRecord(name, rtype, domain.RRClassIN, 3600, []byte{192, 0, 2, 1}, "192.0.2.1", now)
	if err != nil {
		t.Fatalf("failed to build test record: %v", err)
	}
	return rr
}

func TestDnsCache_Lookup_ReturnsEntryIfNotExpired(t *testing.T) {
	cache, err := New(2)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	now := time.Now()
	rr := newTestRR(t, "example.com.", domain.RRTypeA, now)
	key := rr.CacheKey()

	cache.Store(key, []domain.ResourceRecord{rr}, nil, nil, now)

	got, ok := cache.Lookup(key, now.Add(1*time.Second))
	if !ok {
		t.Fatalf("expected entry to be found")
	}
	if len(got.Answers) != 1 || got.Answers[0].Name != "example.com." {
		t.Errorf("expected answer to match stored record, got %+v", got.Answers)
	}
}

func TestDnsCache_Lookup_ReturnsFalseIfExpired(t *testing.T) {
	cache, err := New(2)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	now := time.Now()
	rr := newTestRR(t, "expired.com.", domain.RRTypeA, now)
	key := rr.CacheKey()

	cache.Store(key, []domain.ResourceRecord{rr}, nil, nil, now)

	past := now.Add(TTL + time.Second)
	_, ok := cache.Lookup(key, past)
	if ok {
		t.Errorf("expected entry to be expired")
	}
	if cache.Len() != 0 {
		t.Errorf("expected cache to purge expired entry on access, got len %d", cache.Len())
	}
}

func TestDnsCache_Lookup_ReturnsFalseIfNotPresent(t *testing.T) {
	cache, err := New(2)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	_, ok := cache.Lookup("missing.com.:1:1", time.Now())
	if ok {
		t.Errorf("expected not found for missing key")
	}
}

func TestDnsCache_Store_ReplacesNotMerges(t *testing.T) {
	cache, err := New(2)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	now := time.Now()
	rrOld := newTestRR(t, "example.com.", domain.RRTypeA, now)
	key := rrOld.CacheKey()
	cache.Store(key, []domain.ResourceRecord{rrOld}, nil, nil, now)

	rrNew := newTestRR(t, "example.com.", domain.RRTypeA, now)
	cache.Store(key, []domain.ResourceRecord{rrNew, rrNew}, nil, nil, now)

	got, ok := cache.Lookup(key, now)
	if !ok {
		t.Fatalf("expected entry to be found")
	}
	if len(got.Answers) != 2 {
		t.Errorf("expected Store to replace wholesale (2 answers), got %d", len(got.Answers))
	}
}

func TestDnsCache_Delete_RemovesEntry(t *testing.T) {
	cache, err := New(2)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	now := time.Now()
	rr := newTestRR(t, "delete.com.", domain.RRTypeA, now)
	key := rr.CacheKey()
	cache.Store(key, []domain.ResourceRecord{rr}, nil, nil, now)

	cache.Delete(key)

	if _, ok := cache.Lookup(key, now); ok {
		t.Errorf("expected record to be deleted")
	}
	if cache.Len() != 0 {
		t.Errorf("expected cache to be empty after delete, got %d", cache.Len())
	}
}

func TestDnsCache_Delete_NonExistentKey_NoPanic(t *testing.T) {
	cache, err := New(2)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	cache.Delete("nonexistent.com.:1:1")
	if cache.Len() != 0 {
		t.Errorf("expected cache to be empty, got %d", cache.Len())
	}
}

func TestDnsCache_Keys_EmptyWhenNoEntries(t *testing.T) {
	cache, err := New(2)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	if len(cache.Keys()) != 0 {
		t.Errorf("expected no keys")
	}
}

func TestDnsCache_StoresFullTriple(t *testing.T) {
	cache, err := New(2)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	now := time.Now()
	ns := newTestRR(t, "example.com.", domain.RRTypeNS, now)
	glue := newTestRR(t, "ns1.example.com.", domain.RRTypeA, now)
	key := "example.com.:2:1"

	cache.Store(key, nil, []domain.ResourceRecord{ns}, []domain.ResourceRecord{glue}, now)

	got, ok := cache.Lookup(key, now)
	if !ok {
		t.Fatalf("expected entry to be found")
	}
	if len(got.Authority) != 1 || len(got.Additional) != 1 {
		t.Errorf("expected authority+additional to be cached alongside answers, got %+v", got)
	}
}
