// Package logx configures remindbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional Telegram admin-chat sink (min-level + rate limiting)
//   - Optional Sentry sink for errors
package logx
