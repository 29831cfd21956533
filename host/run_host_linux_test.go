package host

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/slogxt/log"
)

func TestRunHost(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())

	host := NewRunHost(Local{})
	defer func() { require.NoError(t, host.Close(ctx)) }()

	testHost(t, ctx, host, "localhost", "localhost")
}
