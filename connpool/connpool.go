// SPDX-License-Identifier: GPL-3.0-or-later

// Package connpool allows pooling connections and other [io.Closer]
// instances and closing them in a single operation.
package connpool

import (
	"errors"
	"io"
	"slices"
	"sync"
)

// Pool is a pool of [io.Closer].
//
// The zero value is ready to use.
type Pool struct {
	// conns contains the [io.Closer] to close.
	conns []io.Closer

	// mu provides mutual exclusion.
	mu sync.Mutex
}

// New constructs a new [*Pool] instance.
func New() *Pool {
	return &Pool{}
}

// Add adds a given [io.Closer] to the pool.
func (p *Pool) Add(conn io.Closer) {
	p.mu.Lock()
	p.conns = append(p.conns, conn)
	p.mu.Unlock()
}

// Close closes all the [io.Closer] inside the pool iterating
// in backward order. Therefore, if one registers a listener and
// then the connections it accepted, the connections are closed
// first. The returned error is the join of all the errors that
// occurred when closing connections.
func (p *Pool) Close() error {
	// Lock and copy the [io.Closer] to close.
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	// Close all the [io.Closer].
	var errv []error
	for _, conn := range slices.Backward(conns) {
		if err := conn.Close(); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}
