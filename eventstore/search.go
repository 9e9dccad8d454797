package eventstore

import (
	"slices"
	"strings"
)

// DefaultSearchLimit is applied when a SearchRequest carries no positive Limit.
const DefaultSearchLimit = 100

const (
	wildcard    = "*"
	sqlWildcard = "%"

	searchKeyEmail  = "Email"
	searchKeyName   = "Name"
	searchKeyStatus = "Status"
)

/***** SearchPredicate *****/

// SearchPredicate matches metadata rows by key and value.
// A value containing "*" is a wildcard pattern, any other value must match exactly.
type SearchPredicate struct {
	key string
	val string
}

// P builds a SearchPredicate.
func P(key, val string) SearchPredicate {
	return SearchPredicate{key: key, val: val}
}

func (sp SearchPredicate) Key() string {
	return sp.key
}

func (sp SearchPredicate) Val() string {
	return sp.val
}

// IsWildcard reports whether the value must be matched with LIKE semantics.
func (sp SearchPredicate) IsWildcard() bool {
	return strings.Contains(sp.val, wildcard)
}

// LikePattern translates the value into a SQL LIKE pattern.
func (sp SearchPredicate) LikePattern() string {
	return strings.ReplaceAll(sp.val, wildcard, sqlWildcard)
}

// Matches evaluates the predicate against a metadata row in memory, with the same semantics as LIKE / equality in SQL.
func (sp SearchPredicate) Matches(key, value string) bool {
	if key != sp.key {
		return false
	}

	if !sp.IsWildcard() {
		return value == sp.val
	}

	return matchWildcard(sp.val, value)
}

func (sp SearchPredicate) isEmpty() bool {
	return sp.key == "" || sp.val == ""
}

// matchWildcard matches value against a pattern where "*" stands for any sequence of characters.
func matchWildcard(pattern, value string) bool {
	parts := strings.Split(pattern, wildcard)

	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]

	last := len(parts) - 1
	for i := 1; i < last; i++ {
		idx := strings.Index(value, parts[i])
		if idx < 0 {
			return false
		}
		value = value[idx+len(parts[i]):]
	}

	return strings.HasSuffix(value, parts[last])
}

/***** SearchRequest *****/

// SearchRequest describes a metadata search within one entity type.
type SearchRequest struct {
	EntityType string
	EventType  EventType
	Email      string
	Name       string
	Status     string
	Limit      int
	Predicates []SearchPredicate
}

// EffectiveLimit returns Limit, or defaultLimit if Limit is not positive.
// A non-positive defaultLimit falls back to DefaultSearchLimit.
func (r SearchRequest) EffectiveLimit(defaultLimit int) int {
	if r.Limit > 0 {
		return r.Limit
	}

	if defaultLimit > 0 {
		return defaultLimit
	}

	return DefaultSearchLimit
}

// MetadataPredicates returns the named fields (Email, Name, Status) followed by the additional predicates.
// Empty and duplicate predicates are dropped.
func (r SearchRequest) MetadataPredicates() []SearchPredicate {
	all := []SearchPredicate{
		P(searchKeyEmail, r.Email),
		P(searchKeyName, r.Name),
		P(searchKeyStatus, r.Status),
	}
	all = append(all, r.Predicates...)

	predicates := make([]SearchPredicate, 0, len(all))
	for _, predicate := range all {
		if predicate.isEmpty() || slices.Contains(predicates, predicate) {
			continue
		}

		predicates = append(predicates, predicate)
	}

	return predicates
}

/***** SearchFilterBuilder *****/

// SearchFilterBuilder builds a SearchRequest fluently:
//
//	request := BuildSearchFilter("Customer").
//		OfEventType(EventTypeUpdated).
//		Matching(P("Email", "*@example.com"), P("Status", "active")).
//		Limit(20).
//		Finalize()
type SearchFilterBuilder struct {
	request SearchRequest
}

// BuildSearchFilter starts a SearchRequest for the given entity type.
func BuildSearchFilter(entityType string) SearchFilterBuilder {
	return SearchFilterBuilder{request: SearchRequest{EntityType: entityType}}
}

// OfEventType restricts the search to one event type.
func (b SearchFilterBuilder) OfEventType(eventType EventType) SearchFilterBuilder {
	b.request.EventType = eventType
	return b
}

// Matching adds one or multiple predicates which must all match (AND).
//
// It sanitizes the input:
//   - removing empty/partial predicates (key or val is "")
//   - removing duplicate predicates
func (b SearchFilterBuilder) Matching(predicate SearchPredicate, predicates ...SearchPredicate) SearchFilterBuilder {
	merged := slices.Clone(b.request.Predicates)

	for _, p := range append([]SearchPredicate{predicate}, predicates...) {
		if p.isEmpty() || slices.Contains(merged, p) {
			continue
		}

		merged = append(merged, p)
	}

	b.request.Predicates = merged

	return b
}

// Limit sets the maximum number of results.
func (b SearchFilterBuilder) Limit(limit int) SearchFilterBuilder {
	b.request.Limit = limit
	return b
}

// Finalize returns the SearchRequest.
func (b SearchFilterBuilder) Finalize() SearchRequest {
	return b.request
}
