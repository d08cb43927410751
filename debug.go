package twsi

import (
	"context"
	"log/slog"
	"strconv"
)

const (
	// levelTrace logs every register access.
	levelTrace slog.Level = slog.LevelDebug - 1
)

func (c *Controller) logerr(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelError, msg, attrs...)
}

func (c *Controller) warn(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelWarn, msg, attrs...)
}

func (c *Controller) info(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelInfo, msg, attrs...)
}

func (c *Controller) debug(msg string, attrs ...slog.Attr) {
	c.logattrs(slog.LevelDebug, msg, attrs...)
}

func (c *Controller) trace(msg string, attrs ...slog.Attr) {
	if c._traceenabled {
		c.logattrs(levelTrace, msg, attrs...)
	}
}

func (c *Controller) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if c.logger == nil {
		return
	}
	c.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func hexattr(key string, v uint64) slog.Attr {
	return slog.String(key, "0x"+strconv.FormatUint(v, 16))
}
