package check_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nicholishen/daikin-one-plus/internal/cmd/check"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/stretchr/testify/assert"
)

type tokenGetter struct {
	err error
}

func (t tokenGetter) GetToken(context.Context) error {
	return t.err
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want check.Result
	}{
		{name: "ok", want: check.ResultOK},
		{name: "invalid credentials", err: fmt.Errorf("%w: 401 Unauthorized", daikin.ErrInvalidCredentials), want: check.ResultAuthError},
		{name: "not reachable", err: daikin.ErrServerNotReachable, want: check.ResultConnectionError},
		{name: "other", err: errors.New("unexpected"), want: check.ResultConnectionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, check.Check(context.Background(), tokenGetter{err: tt.err}))
		})
	}
}
