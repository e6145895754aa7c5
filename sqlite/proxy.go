package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/fwojciec/smartcrawl"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ smartcrawl.ProxyService = (*ProxyService)(nil)

// ProxyService implements smartcrawl.ProxyService using SQLite.
type ProxyService struct {
	db *DB
}

// NewProxyService creates a new ProxyService.
func NewProxyService(db *DB) *ProxyService {
	return &ProxyService{db: db}
}

// CreateProxy registers a proxy with a generated ID.
func (s *ProxyService) CreateProxy(ctx context.Context, proxy *smartcrawl.Proxy) error {
	if proxy.Endpoint == "" {
		return smartcrawl.Errorf(smartcrawl.EINVALID, "proxy endpoint required")
	}
	protocols, err := marshalStrings(proxy.Protocols)
	if err != nil {
		return err
	}
	if proxy.ID == "" {
		proxy.ID = uuid.New().String()
	}
	proxy.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proxies (id, endpoint, source, protocols, country, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, proxy.ID, proxy.Endpoint, proxy.Source, protocols, proxy.Country, formatTime(proxy.CreatedAt))
	if isUniqueViolation(err) {
		return smartcrawl.Errorf(smartcrawl.ECONFLICT, "proxy %s already registered", proxy.Endpoint)
	}
	return err
}

// FindProxyByID retrieves a proxy by ID.
func (s *ProxyService) FindProxyByID(ctx context.Context, id string) (*smartcrawl.Proxy, error) {
	proxies, err := s.FindProxies(ctx, smartcrawl.ProxyFilter{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(proxies) == 0 {
		return nil, smartcrawl.Errorf(smartcrawl.ENOTFOUND, "proxy not found")
	}
	return proxies[0], nil
}

// FindProxies retrieves proxies matching the filter ordered by ID.
func (s *ProxyService) FindProxies(ctx context.Context, filter smartcrawl.ProxyFilter) ([]*smartcrawl.Proxy, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT id, endpoint, source, protocols, country, created_at FROM proxies WHERE 1=1")
	if filter.ID != nil {
		query.WriteString(" AND id = ?")
		args = append(args, *filter.ID)
	}
	if filter.Endpoint != nil {
		query.WriteString(" AND endpoint = ?")
		args = append(args, *filter.Endpoint)
	}
	query.WriteString(" ORDER BY id")

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proxies []*smartcrawl.Proxy
	for rows.Next() {
		var p smartcrawl.Proxy
		var protocols, createdAt string
		if err := rows.Scan(&p.ID, &p.Endpoint, &p.Source, &protocols, &p.Country, &createdAt); err != nil {
			return nil, err
		}
		if p.Protocols, err = unmarshalStrings(protocols, "protocols"); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
			return nil, err
		}
		proxies = append(proxies, &p)
	}
	return proxies, rows.Err()
}

// FindPerformance returns the performance record of a proxy.
func (s *ProxyService) FindPerformance(ctx context.Context, proxyID string) (*smartcrawl.ProxyPerformance, error) {
	return findPerformance(ctx, s.db.QueryRowContext, proxyID)
}

func findPerformance(ctx context.Context, queryRow queryRowFunc, proxyID string) (*smartcrawl.ProxyPerformance, error) {
	p := smartcrawl.ProxyPerformance{ProxyID: proxyID}
	var total, avg int64
	var lastSuccess, lastFailure string

	err := queryRow(ctx, `
		SELECT total_requests, failed_requests, consecutive_failures, total_response_time,
			average_response_time, success_rate, last_success_at, last_failure_at
		FROM proxy_performance
		WHERE proxy_id = ?
	`, proxyID).Scan(&p.TotalRequests, &p.FailedRequests, &p.ConsecutiveFailures, &total,
		&avg, &p.SuccessRate, &lastSuccess, &lastFailure)
	if errors.Is(err, sql.ErrNoRows) {
		return &p, nil
	}
	if err != nil {
		return nil, err
	}
	p.TotalResponseTime = time.Duration(total)
	p.AverageResponseTime = time.Duration(avg)
	if p.LastSuccessAt, err = parseOptionalRFC3339(lastSuccess, "last_success_at"); err != nil {
		return nil, err
	}
	if p.LastFailureAt, err = parseOptionalRFC3339(lastFailure, "last_failure_at"); err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordProxyOutcome reads, updates and writes the performance record in
// one transaction.
func (s *ProxyService) RecordProxyOutcome(ctx context.Context, proxyID string, o smartcrawl.ProxyOutcome) (*smartcrawl.ProxyPerformance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM proxies WHERE id = ?", proxyID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, smartcrawl.Errorf(smartcrawl.ENOTFOUND, "proxy not found")
	}

	p, err := findPerformance(ctx, tx.QueryRowContext, proxyID)
	if err != nil {
		return nil, err
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}
	p.Record(o)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO proxy_performance (proxy_id, total_requests, failed_requests, consecutive_failures,
			total_response_time, average_response_time, success_rate, last_success_at, last_failure_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (proxy_id) DO UPDATE SET
			total_requests = excluded.total_requests,
			failed_requests = excluded.failed_requests,
			consecutive_failures = excluded.consecutive_failures,
			total_response_time = excluded.total_response_time,
			average_response_time = excluded.average_response_time,
			success_rate = excluded.success_rate,
			last_success_at = excluded.last_success_at,
			last_failure_at = excluded.last_failure_at
	`, proxyID, p.TotalRequests, p.FailedRequests, p.ConsecutiveFailures, int64(p.TotalResponseTime),
		int64(p.AverageResponseTime), p.SuccessRate, formatOptionalTime(p.LastSuccessAt), formatOptionalTime(p.LastFailureAt))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}
