package middleware

import "github.com/aretw0/fable/pkg/ports"

// Middleware allows wrapping a Storage to add behavior.
type Middleware func(ports.Storage) ports.Storage

// Chain wraps store with mws. The first middleware is the outermost, so it
// sees data first on Save and last on Load.
func Chain(store ports.Storage, mws ...Middleware) ports.Storage {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
