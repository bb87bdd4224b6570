package dnsanalysis

import (
	"errors"
	"net"

	"github.com/edvin/dealersites/internal/model"
)

// Lookup is the outcome of a single DNS query. Unresolved means the name
// exists in DNS terms but has no records of the requested type (or NXDOMAIN);
// Errored means the question could not be answered.
type Lookup[T any] struct {
	Outcome model.LookupOutcome
	Value   T
	Err     error
}

func Resolved[T any](v T) Lookup[T] {
	return Lookup[T]{Outcome: model.LookupResolved, Value: v}
}

func Unresolved[T any]() Lookup[T] {
	return Lookup[T]{Outcome: model.LookupUnresolved}
}

func Errored[T any](err error) Lookup[T] {
	return Lookup[T]{Outcome: model.LookupErrored, Err: err}
}

func (l Lookup[T]) Status() model.LookupStatus {
	s := model.LookupStatus{Outcome: l.Outcome}
	if l.Err != nil {
		s.Reason = l.Err.Error()
	}
	return s
}

// fromSlice classifies a resolver answer for list-valued lookups.
func fromSlice[T any](v []T, err error) Lookup[[]T] {
	if err != nil {
		if isNotFound(err) {
			return Unresolved[[]T]()
		}
		return Errored[[]T](err)
	}
	if len(v) == 0 {
		return Unresolved[[]T]()
	}
	return Resolved(v)
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
