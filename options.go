// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cfstructs

// eqConfig holds the creation-time key comparison hook shared by all four
// hash containers. The zero value compares with ==.
type eqConfig[K comparable] struct {
	equal func(a, b K) bool
}

func (c *eqConfig[K]) eq(a, b K) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	return a == b
}

// Option provides an interface to do work on a container while it is being
// created. K is the key type for maps and the value type for sets.
type Option[K comparable] interface {
	apply(c *eqConfig[K])
}

type equalOption[K comparable] struct {
	equal func(a, b K) bool
}

func (op equalOption[K]) apply(c *eqConfig[K]) {
	c.equal = op.equal
}

// WithEqual is an option to specify the equality predicate used to resolve
// hash collisions, for key types whose == is not the comparison the caller
// wants. The predicate must agree with the caller's hashing: equal keys
// must have been given equal hashes.
func WithEqual[K comparable](equal func(a, b K) bool) Option[K] {
	return equalOption[K]{equal}
}
