// Pivota | 2026
// database_test.go

package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapStoreError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, true},
		{"conn done", sql.ErrConnDone, true},
		{"bad conn", driver.ErrBadConn, true},
		{
			"refused dial",
			fmt.Errorf("connect: %w", &net.OpError{
				Op:  "dial",
				Net: "tcp",
				Err: syscall.ECONNREFUSED,
			}),
			true,
		},
		{
			"wrapped deadline",
			fmt.Errorf("query: %w", context.DeadlineExceeded),
			true,
		},
		{"no rows passes through", sql.ErrNoRows, false},
		{"duplicate passes through", ErrDuplicateKey, false},
		{"arbitrary passes through", errors.New("syntax error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapStoreError("op", tt.err)

			if tt.err == nil {
				assert.NoError(t, got)
				return
			}

			if tt.unavailable {
				assert.ErrorIs(t, got, ErrStoreUnavailable)
			} else {
				assert.NotErrorIs(t, got, ErrStoreUnavailable)
				assert.ErrorIs(t, got, tt.err)
			}
		})
	}
}
