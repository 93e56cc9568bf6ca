// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"net/http"

	"github.com/jeremyhahn/go-passkey/pkg/correlation"
)

// CorrelationMiddleware extracts or generates a correlation ID for request tracing.
// It checks for correlation IDs in the following order:
// 1. X-Correlation-ID header
// 2. X-Request-ID header
// 3. Generates a new UUID if neither is present
//
// The correlation ID is added to the request context and echoed in the
// response headers, so a ceremony's begin and finish calls can be tied
// together in logs.
func (s *Server) CorrelationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(correlation.CorrelationIDHeader)
			if correlationID == "" {
				correlationID = r.Header.Get(correlation.RequestIDHeader)
			}
			if correlationID == "" {
				correlationID = correlation.NewID()
			}

			ctx := correlation.WithCorrelationID(r.Context(), correlationID)
			r = r.WithContext(ctx)

			w.Header().Set(correlation.CorrelationIDHeader, correlationID)

			next.ServeHTTP(w, r)
		})
	}
}
