// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/lms/pkg/uuid"
)

/*
TestNew produces valid, time-ordered identifiers.
*/
func TestNew(t *testing.T) {
	first := uuid.New()
	second := uuid.New()

	assert.True(t, uuid.IsValid(first))
	assert.NotEqual(t, first, second)
	assert.Equal(t, byte('7'), first[14])
}

func TestIsValid(t *testing.T) {
	assert.False(t, uuid.IsValid(""))
	assert.False(t, uuid.IsValid("not-a-uuid"))
}
