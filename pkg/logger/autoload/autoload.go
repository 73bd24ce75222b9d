// Package autoload configures the global logger from the LOG_* environment
// on import.
package autoload

import (
	configx "github.com/chayanin/docrouter/pkg/config"
	logx "github.com/chayanin/docrouter/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
