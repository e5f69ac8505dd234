// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// # Security Features
//
// The SecureHandler sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Session cookies such as JSESSIONID and WMONID
//   - Secret values detected by pattern matching (tokens, keys, Redis URLs)
//   - Session ids embedded in URLs and error messages, e.g. ";jsessionid="
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets in logs that may be shared or stored.
//
// # Usage
//
//	logger := log.New(os.Stderr, log.Options{Verbose: true})
//
//	logger.Info("list page fetched",
//	    "cookie", "JSESSIONID=abc123", // masked
//	    "url", "https://www.example.go.kr/list.do;jsessionid=abc123", // session id masked
//	)
//
//	slog.SetDefault(logger)
package log
