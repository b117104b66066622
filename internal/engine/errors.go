package engine

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/vantage-db/vantage/internal/driver"
	"github.com/vantage-db/vantage/internal/secrets"
	"github.com/vantage-db/vantage/internal/tunnel"
)

// Kind buckets errors for logging and boundary reporting.
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindIntegrity      Kind = "integrity"
	KindAuthentication Kind = "authentication"
	KindConnectivity   Kind = "connectivity"
	KindValidation     Kind = "validation"
	KindProvider       Kind = "provider"
)

// Classify maps an error onto the failure taxonomy. Anything unrecognized is
// a provider error: the dialect rejected something we sent it.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, secrets.ErrMissingSecret):
		return KindConfiguration
	case errors.Is(err, secrets.ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, tunnel.ErrInvalidKey),
		errors.Is(err, driver.ErrNotReadOnly),
		errors.Is(err, driver.ErrInvalidParams),
		errors.Is(err, driver.ErrUnknownProvider),
		errors.Is(err, ErrBadDescriptor):
		return KindValidation
	case isAuthFailure(err):
		return KindAuthentication
	case isConnectivityFailure(err):
		return KindConnectivity
	default:
		return KindProvider
	}
}

// Describe renders an error as the short human-readable string the boundary
// returns. Stack traces and driver internals stay out of responses.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func isAuthFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"unable to authenticate",         // x/crypto/ssh
		"password authentication failed", // postgres
		"access denied",                  // mysql
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isConnectivityFailure(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "no such host", "timeout", "tunnel setup failed", "network is unreachable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
