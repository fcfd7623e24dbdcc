package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nicholishen/daikin-one-plus/internal/app"
	"github.com/nicholishen/daikin-one-plus/pkg/daikin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = cobra.Command{
	Use:   "check",
	Short: "Check the Daikin credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := app.NewClient(viper.GetViper(), nil, slog.Default())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), Check(cmd.Context(), client))
		return err
	},
}

type Result string

const (
	ResultOK              Result = "ok"
	ResultAuthError       Result = "auth_error"
	ResultConnectionError Result = "connection_error"
)

type TokenGetter interface {
	GetToken(ctx context.Context) error
}

// Check authenticates against the Daikin API.
func Check(ctx context.Context, c TokenGetter) Result {
	err := c.GetToken(ctx)
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, daikin.ErrInvalidCredentials):
		return ResultAuthError
	default:
		return ResultConnectionError
	}
}
