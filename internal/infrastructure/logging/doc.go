// Package logging provides structured logging for knxnetd.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service and version fields. The Logger type carries the
// Debug/Info/Warn/Error(msg, kv...) methods expected by the library
// packages, which take it through their SetLogger or WithLogger hooks.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  frames: false      # log every KNXnet/IP frame at debug
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	c.SetLogger(logger.Component("client"))
//
// Never log secrets, tokens or passwords.
package logging
