package cache

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// keyNamespace prefixes every store key so an aquacache instance can
// share a valkey database with other tenants.
const keyNamespace = "aquacache:"

type ValkeyTLSConfig struct {
	Enabled bool
	CAFile  string
}

type ValkeyConfig struct {
	Address     string
	Username    string
	Password    string
	DB          int
	StaleFactor int
	TLS         ValkeyTLSConfig
}

// valkeyStore keeps entries as JSON values whose server-side expiry is
// the stale horizon (ttl times staleFactor), not the TTL itself, so
// stale-allowed reads keep working after the TTL elapses. Freshness is
// judged from the storedAt/ttl fields carried in the payload.
type valkeyStore struct {
	client      valkey.Client
	staleFactor int

	mu        sync.Mutex
	hits      uint64
	misses    uint64
	staleHits uint64
}

// NewValkey connects to the configured valkey server and verifies it
// responds before handing back the store.
func NewValkey(cfg ValkeyConfig) (Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("cache: valkey address required")
	}
	if cfg.StaleFactor <= 0 {
		cfg.StaleFactor = defaultStaleFactor
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("cache: read valkey ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("cache: valkey ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("cache: valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: valkey ping: %w", err)
	}

	return &valkeyStore{client: client, staleFactor: cfg.StaleFactor}, nil
}

func (s *valkeyStore) Get(ctx context.Context, key string, allowStale bool) (Entry, Lookup, error) {
	entry, found, err := s.load(ctx, keyNamespace+key)
	if err != nil {
		return Entry{}, LookupMiss, err
	}
	if !found {
		s.count(LookupMiss)
		return Entry{}, LookupMiss, nil
	}
	if entry.Fresh(time.Now()) {
		s.count(LookupHit)
		return entry, LookupHit, nil
	}
	if !allowStale {
		s.count(LookupMiss)
		return Entry{}, LookupMiss, nil
	}
	s.count(LookupStale)
	return entry, LookupStale, nil
}

// load reads and decodes an entry without touching the session
// counters, so internal sweeps do not distort hit/miss stats.
func (s *valkeyStore) load(ctx context.Context, namespacedKey string) (Entry, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(namespacedKey).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cache: valkey get: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: valkey get bytes: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("cache: valkey unmarshal: %w", err)
	}
	return entry, true, nil
}

func (s *valkeyStore) Set(ctx context.Context, key string, value any, ttl time.Duration, category Category) error {
	entry := Entry{
		Key:      key,
		Value:    value,
		Category: category,
		StoredAt: time.Now().UTC(),
		TTL:      ttl,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: valkey marshal: %w", err)
	}
	horizon := ttl * time.Duration(s.staleFactor)
	if horizon <= 0 {
		horizon = time.Minute
	}
	cmd := s.client.B().Set().Key(keyNamespace + key).Value(string(payload)).Px(horizon).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache: valkey set: %w", err)
	}
	return nil
}

func (s *valkeyStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(keyNamespace+key).Build()).Error(); err != nil {
		return fmt.Errorf("cache: valkey del: %w", err)
	}
	return nil
}

func (s *valkeyStore) DeleteMatching(ctx context.Context, substr string) (int, error) {
	if substr == "" {
		return 0, nil
	}
	keys, err := s.scan(ctx, keyNamespace+"*"+substr+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return 0, fmt.Errorf("cache: valkey del matching: %w", err)
	}
	return len(keys), nil
}

func (s *valkeyStore) Clear(ctx context.Context, category Category) error {
	keys, err := s.scan(ctx, keyNamespace+"*")
	if err != nil {
		return err
	}
	var doomed []string
	if category == "" {
		doomed = keys
	} else {
		for _, key := range keys {
			entry, found, err := s.load(ctx, key)
			if err != nil || !found {
				continue
			}
			if entry.Category == category {
				doomed = append(doomed, key)
			}
		}
	}
	if len(doomed) == 0 {
		return nil
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(doomed...).Build()).Error(); err != nil {
		return fmt.Errorf("cache: valkey clear: %w", err)
	}
	return nil
}

func (s *valkeyStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.scan(ctx, keyNamespace+"*")
	if err != nil {
		return Stats{}, err
	}
	byCategory := make(map[Category]int64)
	for _, key := range keys {
		entry, found, err := s.load(ctx, key)
		if err != nil || !found {
			continue
		}
		byCategory[entry.Category]++
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Entries:    int64(len(keys)),
		Hits:       s.hits,
		Misses:     s.misses,
		StaleHits:  s.staleHits,
		ByCategory: byCategory,
	}, nil
}

func (s *valkeyStore) Close(context.Context) error {
	s.client.Close()
	return nil
}

func (s *valkeyStore) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	cursor := uint64(0)
	for {
		resp := s.client.Do(ctx, s.client.B().Scan().Cursor(cursor).Match(pattern).Count(200).Build())
		scanEntry, err := resp.AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("cache: valkey scan: %w", err)
		}
		keys = append(keys, scanEntry.Elements...)
		cursor = scanEntry.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}

// count tracks session hit/miss counters locally; valkey has no notion
// of this store's stale-aware lookup outcomes.
func (s *valkeyStore) count(lookup Lookup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch lookup {
	case LookupHit:
		s.hits++
	case LookupStale:
		s.staleHits++
	default:
		s.misses++
	}
}
