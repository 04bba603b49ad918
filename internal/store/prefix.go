package store

import "context"

// prefixed scopes every key of an underlying store under a fixed prefix.
// Close is a no-op; the underlying store is owned by the caller.
type prefixed struct {
	inner  Store
	prefix string
}

// WithPrefix returns a view of s where every key is stored as prefix+key.
func WithPrefix(s Store, prefix string) Store {
	return &prefixed{inner: s, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Remove(ctx context.Context, key string) error {
	return p.inner.Remove(ctx, p.prefix+key)
}

func (p *prefixed) Close() error {
	return nil
}
