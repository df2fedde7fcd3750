package connectors

import "fmt"

// GatewayError wraps a failed quote, swap, price or balance call against
// an external service. Orders hitting one terminate as failed; the
// executor never retries — transport-level retry lives in the resty
// clients.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func gatewayErr(op string, err error) error {
	return &GatewayError{Op: op, Err: err}
}

func gatewayErrf(op string, format string, args ...interface{}) error {
	return &GatewayError{Op: op, Err: fmt.Errorf(format, args...)}
}
