// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package requestutil_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	requestutil "github.com/taibuivan/gatekeeper/internal/platform/request"
	"github.com/taibuivan/gatekeeper/internal/platform/validate"
)

/*
TestBearerToken covers header parsing edge cases.
*/
func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"standard", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase_scheme", "bearer abc.def.ghi", "abc.def.ghi"},
		{"missing", "", ""},
		{"basic_scheme", "Basic dXNlcjpwYXNz", ""},
		{"scheme_only", "Bearer ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, requestutil.BearerToken(request))
		})
	}
}

/*
TestDecodeJSON_RejectsUnknownFields verifies strict body decoding.
*/
func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var target struct {
		Email string `json:"email"`
	}

	request := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","role":"ADMIN"}`))
	assert.ErrorIs(t, requestutil.DecodeJSON(request, &target), validate.ErrInvalidJSON)

	request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c"}`))
	assert.NoError(t, requestutil.DecodeJSON(request, &target))
	assert.Equal(t, "a@b.c", target.Email)
}
