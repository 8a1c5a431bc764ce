// internal/connections/routes.go

package connections

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes registers all connection routes
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/v1/connections").Subrouter()
	api.Use(authMiddleware)

	api.HandleFunc("/requests", handler.SendRequest).Methods("POST")
	api.HandleFunc("/requests", handler.ListRequests).Methods("GET")
	api.HandleFunc("/requests/{id:[0-9]+}/accept", handler.AcceptRequest).Methods("POST")
	api.HandleFunc("/requests/{id:[0-9]+}/decline", handler.DeclineRequest).Methods("POST")
	api.HandleFunc("/requests/{id:[0-9]+}/withdraw", handler.WithdrawRequest).Methods("POST")
	api.HandleFunc("", handler.ListConnections).Methods("GET")
}
