// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package requestutil_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	requestutil "github.com/taibuivan/lms/internal/platform/request"
	"github.com/taibuivan/lms/internal/platform/validate"
)

type payload struct {
	Email string `json:"email"`
}

/*
TestDecodeJSON accepts one well-formed object and nothing else.
*/
func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"email":"a@b.co"}`, false},
		{"malformed", `{"email":`, true},
		{"unknown_field", `{"email":"a@b.co","admin":true}`, true},
		{"trailing_object", `{"email":"a@b.co"}{"email":"c@d.co"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var target payload

			err := requestutil.DecodeJSON(httptest.NewRecorder(), req, &target)
			if tt.wantErr {
				assert.ErrorIs(t, err, validate.ErrInvalidJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a@b.co", target.Email)
		})
	}
}

/*
TestRequiredUserID rejects anonymous requests.
*/
func TestRequiredUserID(t *testing.T) {
	_, err := requestutil.RequiredUserID(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)
}
