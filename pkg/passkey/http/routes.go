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

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts the ceremony routes on a chi router.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	r.Route("/api/v1/webauthn", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/registration/begin", h.BeginRegistration)
	r.Post("/registration/finish", h.FinishRegistration)
	r.Post("/login/begin", h.BeginLogin)
	r.Post("/login/finish", h.FinishLogin)
}

// MountStdlib mounts the ceremony routes on a stdlib http.ServeMux.
// The prefix should not include a trailing slash.
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc(prefix+"/registration/begin", h.BeginRegistration)
	mux.HandleFunc(prefix+"/registration/finish", h.FinishRegistration)
	mux.HandleFunc(prefix+"/login/begin", h.BeginLogin)
	mux.HandleFunc(prefix+"/login/finish", h.FinishLogin)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns the route table for manual mounting on routers not
// directly supported.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "POST", Path: "/registration/begin", Handler: h.BeginRegistration},
		{Method: "POST", Path: "/registration/finish", Handler: h.FinishRegistration},
		{Method: "POST", Path: "/login/begin", Handler: h.BeginLogin},
		{Method: "POST", Path: "/login/finish", Handler: h.FinishLogin},
	}
}
