package hiorg

import (
	"errors"
	"fmt"
)

var (
	ErrNoAPIKey             = errors.New("no api key configured")
	ErrInvalidFilter        = errors.New("filter has to be at least 2 characters long")
	ErrUnsupportedOperation = errors.New("operation not implemented by HiOrg-Server")
	ErrServiceUnavailable   = errors.New("HiOrg-Server not available")
	ErrMissingCredentials   = errors.New("backend login requires username and password")
	ErrMissingToken         = errors.New("token is not set")
	ErrInvalidToken         = errors.New("token is invalid")
	ErrOrganizationMismatch = errors.New("wrong organization code (ov) returned")
	ErrTooManyRedirects     = errors.New("redirect limit reached, the redirects probably loop")
)

// TransportError is returned when a request never produced an HTTP response.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ApplicationError carries the "fehler" message of a non-OK EFS envelope.
type ApplicationError struct {
	Action  string
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("efs action '%s' failed", e.Action)
	}
	return e.Message
}
