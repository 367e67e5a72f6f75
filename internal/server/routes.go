// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// WebSocket sessions are served on both "/" and "/ws".
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", RootHandler(hub))
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
