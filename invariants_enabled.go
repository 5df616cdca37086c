// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build invariants

package cfstructs

// invariants enables the full-table consistency checks after every
// mutation. Checks are O(capacity^2), so this is for tests only:
//
//	go test -tags invariants ./...
const invariants = true
