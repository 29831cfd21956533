package host

import (
	"context"
	"io"
	"log/slog"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/host/types"
)

// LoggingWrapper wraps Host logging received commands.
type LoggingWrapper struct {
	host types.Host
}

func NewLoggingWrapper(host types.Host) *LoggingWrapper {
	return &LoggingWrapper{host: host}
}

func (h *LoggingWrapper) logger(ctx context.Context) (context.Context, *slog.Logger) {
	return log.MustWithGroupAttrs(ctx, "🖥️ Host", "type", h.host.Type(), "name", h.host.String())
}

func (h *LoggingWrapper) Run(ctx context.Context, cmd types.Cmd) (types.WaitStatus, error) {
	ctx, logger := h.logger(ctx)
	logger.Debug("Run", "cmd", cmd)
	return h.host.Run(ctx, cmd)
}

func (h *LoggingWrapper) String() string {
	return h.host.String()
}

func (h *LoggingWrapper) Type() string {
	return h.host.Type()
}

func (h *LoggingWrapper) Close(ctx context.Context) error {
	ctx, logger := h.logger(ctx)
	logger.Debug("Close")
	return h.host.Close(ctx)
}

func (h *LoggingWrapper) Lstat(ctx context.Context, name string) (*types.Stat_t, error) {
	ctx, logger := h.logger(ctx)
	logger.Debug("Lstat", "name", name)
	return h.host.Lstat(ctx, name)
}

func (h *LoggingWrapper) ReadDir(ctx context.Context, name string) (<-chan types.DirEntResult, func()) {
	ctx, logger := h.logger(ctx)
	logger.Debug("ReadDir", "name", name)
	return h.host.ReadDir(ctx, name)
}

func (h *LoggingWrapper) Mkdir(ctx context.Context, name string, mode types.FileMode) error {
	ctx, logger := h.logger(ctx)
	logger.Debug("Mkdir", "name", name, "mode", mode)
	return h.host.Mkdir(ctx, name, mode)
}

func (h *LoggingWrapper) ReadFile(ctx context.Context, name string) (io.ReadCloser, error) {
	ctx, logger := h.logger(ctx)
	logger.Debug("ReadFile", "name", name)
	return h.host.ReadFile(ctx, name)
}

func (h *LoggingWrapper) Symlink(ctx context.Context, oldname, newname string) error {
	ctx, logger := h.logger(ctx)
	logger.Debug("Symlink", "oldname", oldname, "newname", newname)
	return h.host.Symlink(ctx, oldname, newname)
}

func (h *LoggingWrapper) Remove(ctx context.Context, name string) error {
	ctx, logger := h.logger(ctx)
	logger.Debug("Remove", "name", name)
	return h.host.Remove(ctx, name)
}

func (h *LoggingWrapper) WriteFile(ctx context.Context, name string, data io.Reader, mode types.FileMode) error {
	ctx, logger := h.logger(ctx)
	logger.Debug("WriteFile", "name", name, "mode", mode)
	return h.host.WriteFile(ctx, name, data, mode)
}

// Unwrap returns the wrapped Host.
func (h *LoggingWrapper) Unwrap() types.Host {
	return h.host
}
