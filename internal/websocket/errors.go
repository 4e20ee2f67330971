// internal/websocket/errors.go
package websocket

import "errors"

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrUnknownEvent = errors.New("unsupported event type")
)
