package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidContract marks a contract the metric calculator cannot derive
// percentages or leverage for (ask <= 0, bid <= 0, delta <= 0). Invalid
// contracts are dropped from the candidate pool silently; they never fail a
// scan.
var ErrInvalidContract = errors.New("invalid contract")

// InvalidContractError wraps ErrInvalidContract with the offending field.
type InvalidContractError struct {
	Ticker string
	Field  string
	Value  float64
}

func (e *InvalidContractError) Error() string {
	return fmt.Sprintf("invalid contract for %s: %s = %g", e.Ticker, e.Field, e.Value)
}

func (e *InvalidContractError) Unwrap() error { return ErrInvalidContract }

// PresetConfigError is fatal at preset load time: a preset with MIN > MAX on
// any threshold must never be used anywhere.
type PresetConfigError struct {
	Preset string
	Field  string
	Reason string
}

func (e *PresetConfigError) Error() string {
	if e.Preset != "" {
		return fmt.Sprintf("preset %q: invalid %s threshold: %s", e.Preset, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s threshold: %s", e.Field, e.Reason)
}

// GatewayError is a transient failure fetching quotes or a chain from the
// market-data gateway. The scan retries a bounded number of times with
// backoff; an exhausted ticker is marked failed in the scan result and the
// scan continues.
type GatewayError struct {
	Ticker     string
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s failed for %s: HTTP %d", e.Op, e.Ticker, e.StatusCode)
	}
	return fmt.Sprintf("gateway %s failed for %s: %v", e.Op, e.Ticker, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ErrNotFound is returned by repositories when a requested row does not exist.
var ErrNotFound = errors.New("not found")
