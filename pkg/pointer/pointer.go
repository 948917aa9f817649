// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package pointer converts between values and the pointers used for nullable columns.

Key Functions:
  - To: Creates a pointer from a value literal.
  - Val: Dereferences a pointer, returning the zero value if nil.
  - NonBlank: Maps blank strings to nil so they are stored as NULL.
*/
package pointer

import "strings"

// To returns a pointer to the provided value.
func To[T any](v T) *T {
	return &v
}

// Val safely dereferences a pointer.
// If the pointer is nil, it returns the zero value of the underlying type.
func Val[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// NonBlank returns a pointer to the trimmed value, or nil when nothing is left.
func NonBlank(value string) *string {
	if value = strings.TrimSpace(value); value == "" {
		return nil
	}
	return &value
}
