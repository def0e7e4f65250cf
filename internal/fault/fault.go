// Package fault classifies failures coming back from the ledger accessor.
//
// Structured categories are consulted first (an error that reports its own
// Code, context deadlines, net errors, go-ethereum rpc errors). Substring
// matching on the lowercase error text is only the fallback for untyped
// errors.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// Code is the category assigned to a failure.
type Code string

const (
	Network     Code = "NETWORK"
	Provider    Code = "PROVIDER"
	Contract    Code = "CONTRACT"
	Transaction Code = "TRANSACTION"
	Timeout     Code = "TIMEOUT"
	RateLimit   Code = "RATE_LIMIT"
	Unknown     Code = "UNKNOWN"
)

// Error is a classified failure. It is created once per failure and never mutated.
type Error struct {
	Message string
	Code    Code
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Categorizer is implemented by accessor errors that know their own category.
type Categorizer interface {
	Category() Code
}

// JSON-RPC error codes used by common providers.
const (
	rpcExecutionReverted = 3
	rpcLimitExceeded     = -32005
	rpcServerErrorMin    = -32099
	rpcServerErrorMax    = -32000
)

// textRules are checked in order; the first substring hit wins.
var textRules = []struct {
	needles []string
	code    Code
}{
	{[]string{"network"}, Network},
	{[]string{"provider", "rpc"}, Provider},
	{[]string{"contract"}, Contract},
	{[]string{"transaction"}, Transaction},
	{[]string{"timeout"}, Timeout},
	{[]string{"rate limit", "429"}, RateLimit},
}

// Classify converts err into a *Error. An error that is already classified is
// returned as is. Classify(nil) returns nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return &Error{Message: err.Error(), Code: codeOf(err), Cause: err}
}

// New builds a classified error with an explicit code.
func New(code Code, message string) *Error {
	return &Error{Message: message, Code: code}
}

// IsRecoverable reports whether waiting and retrying could make err go away.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err).Code {
	case Network, Timeout, RateLimit:
		return true
	default:
		return false
	}
}

func codeOf(err error) Code {
	if code, ok := structuredCode(err); ok {
		return code
	}
	return textCode(err.Error())
}

func structuredCode(err error) (Code, bool) {
	var cat Categorizer
	if errors.As(err, &cat) {
		return cat.Category(), true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout, true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return RateLimit, true
		case httpErr.StatusCode == http.StatusRequestTimeout || httpErr.StatusCode == http.StatusGatewayTimeout:
			return Timeout, true
		case httpErr.StatusCode >= 500:
			return Provider, true
		}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch c := rpcErr.ErrorCode(); {
		case c == rpcLimitExceeded:
			return RateLimit, true
		case c == rpcExecutionReverted:
			return Contract, true
		case c >= rpcServerErrorMin && c <= rpcServerErrorMax:
			// Providers overload this range; the message is more precise.
			if code := textCode(err.Error()); code != Unknown {
				return code, true
			}
			return Provider, true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Network, true
	}
	return "", false
}

func textCode(msg string) Code {
	msg = strings.ToLower(msg)
	for _, rule := range textRules {
		for _, n := range rule.needles {
			if strings.Contains(msg, n) {
				return rule.code
			}
		}
	}
	return Unknown
}

var userMessages = map[Code]string{
	Network:     "Network connection problem. Check your connection and try again.",
	Provider:    "The ledger provider is unavailable right now. Try again shortly.",
	Contract:    "The contract rejected the request.",
	Transaction: "The transaction could not be processed.",
	Timeout:     "The ledger took too long to respond. Try again.",
	RateLimit:   "Too many requests to the ledger provider. Wait a moment and retry.",
	Unknown:     "Something went wrong while talking to the ledger.",
}

// UserMessage returns a short text suitable for a presentation layer. Raw
// transport detail never appears in it.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return userMessages[Classify(err).Code]
}
