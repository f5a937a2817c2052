// Package fanout delivers one encoded message to many endpoints.
package fanout

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEncode     = errors.New("message could not be encoded")
	ErrNoEndpoint = errors.New("target has no endpoint")
)

// Endpoint is anything that accepts an already encoded frame.
// Implementations must not block.
type Endpoint interface {
	Send(data []byte) error
}

// Target is a named endpoint.
type Target struct {
	ID       string
	Endpoint Endpoint
}

// Predicate selects which targets receive a message.
type Predicate func(id string) bool

// Everyone selects all targets.
func Everyone(string) bool { return true }

// Except selects every target but the given ids.
func Except(ids ...string) Predicate {
	if len(ids) == 0 {
		return Everyone
	}
	skip := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		skip[id] = struct{}{}
	}
	return func(id string) bool {
		_, excluded := skip[id]
		return !excluded
	}
}

// Only selects the given ids.
func Only(ids ...string) Predicate {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	return func(id string) bool {
		_, ok := keep[id]
		return ok
	}
}

// Report describes what happened to a single delivery.
type Report struct {
	Delivered []string
	Failed    map[string]error
}

// Deliver encodes msg once and hands the bytes to every selected target.
// A failing endpoint is recorded in the report and does not stop delivery
// to the rest.
func Deliver(msg any, targets []Target, keep Predicate) (Report, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return DeliverEncoded(data, targets, keep), nil
}

// DeliverEncoded is Deliver for callers that already hold the encoding.
func DeliverEncoded(data []byte, targets []Target, keep Predicate) Report {
	if keep == nil {
		keep = Everyone
	}

	var report Report
	for _, target := range targets {
		if !keep(target.ID) {
			continue
		}
		if target.Endpoint == nil {
			report.fail(target.ID, ErrNoEndpoint)
			continue
		}
		if err := target.Endpoint.Send(data); err != nil {
			report.fail(target.ID, err)
			continue
		}
		report.Delivered = append(report.Delivered, target.ID)
	}
	return report
}

func (r *Report) fail(id string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[id] = err
}
