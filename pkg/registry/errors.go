package registry

import "errors"

var (
	ErrNilStore = errors.New("registry: store is nil")
	ErrClosed   = errors.New("registry: registrar closed")
)
