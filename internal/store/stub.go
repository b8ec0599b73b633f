package store

import "context"

// Stub is a no-op Client used when the store dependency is disabled by
// configuration (spec §9 "Duck-typed stubs"). Widget generation against a
// Stub is always tagged fallback_mode=true by the widget cache.
type Stub struct{}

func (Stub) IsStub() bool { return true }

func (Stub) Execute(ctx context.Context, sql string, params map[string]any) ([]Row, error) {
	return nil, nil
}

func (Stub) BulkInsert(ctx context.Context, table string, columns []string, rows []Row) error {
	return nil
}

func (Stub) HealthCheck(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{OK: false}, nil
}
