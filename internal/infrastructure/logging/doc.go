// Package logging builds the structured logger shared by every lightbridge
// component. It is a thin layer over log/slog:
//
//   - JSON records by default, text when format is "text"
//   - service and version attributes on every record
//   - values of attributes named key, local_key or password replaced
//     with [REDACTED], so a device declaration can be logged whole
//   - a Log(message, severity) sink for callers that grade verbosity
//     numerically (0 error, 1 info, 2 and above debug)
//
// Configuration:
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json     # json, text
//	  output: stdout   # stdout, stderr, discard
package logging
