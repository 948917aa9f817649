// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid provides time-ordered unique identifiers for the platform.

Every account and session id is a Version 7 UUID: naturally ordered by
creation time, which keeps PostgreSQL B-tree inserts append-only.
*/
package uuid

import "github.com/google/uuid"

// New generates a new UUIDv7 string.
func New() string {

	// entropy failure is an unrecoverable system-level error
	id, err := uuid.NewV7()
	if err != nil {
		panic("uuid: failed to generate UUIDv7: " + err.Error())
	}

	return id.String()
}

// IsValid reports whether s parses as a UUID of any version.
// Path parameters are checked with it before they reach a uuid column.
func IsValid(s string) bool {
	return uuid.Validate(s) == nil
}
