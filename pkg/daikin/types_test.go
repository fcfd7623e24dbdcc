package daikin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name        string
		credentials Credentials
		wantErr     assert.ErrorAssertionFunc
	}{
		{
			name:        "valid",
			credentials: Credentials{Email: "user@example.com", APIKey: "key", IntegratorToken: "0123456789abcdef"},
			wantErr:     assert.NoError,
		},
		{
			name:        "no domain",
			credentials: Credentials{Email: "user@example", APIKey: "key", IntegratorToken: "0123456789abcdef"},
			wantErr:     assert.Error,
		},
		{
			name:        "not an email",
			credentials: Credentials{Email: "user", APIKey: "key", IntegratorToken: "0123456789abcdef"},
			wantErr:     assert.Error,
		},
		{
			name:        "missing api key",
			credentials: Credentials{Email: "user@example.com", IntegratorToken: "0123456789abcdef"},
			wantErr:     assert.Error,
		},
		{
			name:        "short token",
			credentials: Credentials{Email: "user@example.com", APIKey: "key", IntegratorToken: "0123"},
			wantErr:     assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.wantErr(t, tt.credentials.Validate())
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr assert.ErrorAssertionFunc
	}{
		{input: "auto", want: ModeAuto, wantErr: assert.NoError},
		{input: "OFF", want: ModeOff, wantErr: assert.NoError},
		{input: "Heat", want: ModeHeat, wantErr: assert.NoError},
		{input: " cool ", want: ModeCool, wantErr: assert.NoError},
		{input: "dry", wantErr: assert.Error},
		{input: "", wantErr: assert.Error},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			tt.wantErr(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_ensureTokenValid(t *testing.T) {
	var tokenCalls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		_, _ = w.Write([]byte(`{"accessToken":"token","accessTokenExpiresIn":600}`))
	}))
	t.Cleanup(s.Close)

	now := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	c := New(Credentials{}, WithBaseURL(s.URL))
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.ensureTokenValid(ctx))
	assert.Equal(t, int32(1), tokenCalls.Load())
	assert.Equal(t, now.Add(10*time.Minute), c.getSession().Expiry)

	now = now.Add(10*time.Minute - time.Second)
	require.NoError(t, c.ensureTokenValid(ctx))
	assert.Equal(t, int32(1), tokenCalls.Load())

	now = now.Add(time.Second)
	require.NoError(t, c.ensureTokenValid(ctx))
	assert.Equal(t, int32(2), tokenCalls.Load())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c.getSession().SetAuthHeader(req)
	assert.Equal(t, "Bearer token", req.Header.Get("Authorization"))
}

func TestResponse_OK(t *testing.T) {
	var r *Response
	assert.False(t, r.OK())
	assert.True(t, (&Response{StatusCode: http.StatusNoContent}).OK())
	assert.False(t, (&Response{StatusCode: http.StatusBadRequest}).OK())
}
