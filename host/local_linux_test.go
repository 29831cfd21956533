package host

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/slogxt/log"
)

func TestLocal(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())

	host := Local{}
	defer func() { require.NoError(t, host.Close(ctx)) }()

	testHost(t, ctx, host, "localhost", "localhost")
}
