package redis

import "strings"

const (
	defaultNamespace  = "mh"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	lockPrefix        = "lock"
)

// Keyspace builds colon-separated keys under one namespace so several
// environments can share a Redis instance.
type Keyspace struct {
	namespace string
}

// NewKeyspace returns a keyspace rooted at namespace, or "mh" when blank.
func NewKeyspace(namespace string) Keyspace {
	namespace = strings.Trim(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = defaultNamespace
	}
	return Keyspace{namespace: namespace}
}

// Key joins parts under the namespace, skipping blanks.
func (k Keyspace) Key(parts ...string) string {
	ns := k.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func (k Keyspace) Idempotency(scope, id string) string { return k.Key(idempotencyPrefix, scope, id) }
func (k Keyspace) RateLimit(scope string) string       { return k.Key(rateLimitPrefix, scope) }
func (k Keyspace) Lock(name string) string             { return k.Key(lockPrefix, name) }
