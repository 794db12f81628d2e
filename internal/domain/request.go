package domain

import (
	"fmt"
	"slices"
)

// RequestStatus is the lifecycle state of a connection request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

// requestTransitions lists the allowed moves; terminal states have none.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestAccepted, RequestRejected, RequestExpired},
	RequestAccepted: nil,
	RequestRejected: nil,
	RequestExpired:  nil,
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	_, ok := requestTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s RequestStatus) Terminal() bool {
	return len(requestTransitions[s]) == 0
}

// Transition checks that from -> to is allowed.
func Transition(from, to RequestStatus) error {
	if !slices.Contains(requestTransitions[from], to) {
		return InvalidState("request cannot move from %s to %s", from, to)
	}
	return nil
}

// DirectKey is the order-independent key of a direct conversation between a and b.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s", a, b)
}
