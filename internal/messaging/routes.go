// internal/messaging/routes.go

package messaging

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes registers all messaging routes. The websocket endpoint
// sits outside the auth middleware; its token arrives in the first
// frame after the upgrade.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	router.HandleFunc("/api/v1/messaging/ws", handler.HandleWebSocket).Methods("GET")

	api := router.PathPrefix("/api/v1/messaging").Subrouter()
	api.Use(authMiddleware)

	api.HandleFunc("/conversation/{participantId:[0-9]+}", handler.GetOrCreateConversation).Methods("GET")
	api.HandleFunc("/conversations", handler.ListConversations).Methods("GET")
	api.HandleFunc("/conversation/{id:[0-9]+}/messages", handler.GetMessages).Methods("GET")
	api.HandleFunc("/conversation/{id:[0-9]+}/send", handler.SendMessage).Methods("POST")
	api.HandleFunc("/message/{id:[0-9]+}/edit", handler.EditMessage).Methods("PUT")
	api.HandleFunc("/message/{id:[0-9]+}", handler.DeleteMessage).Methods("DELETE")
	api.HandleFunc("/search", handler.SearchMessages).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(adminMiddleware)

	admin.HandleFunc("/conversation/{participantId:[0-9]+}", handler.AdminGetOrCreateConversation).Methods("GET")
	admin.HandleFunc("/conversations", handler.AdminListConversations).Methods("GET")
	admin.HandleFunc("/conversation/{id:[0-9]+}/send", handler.AdminSendMessage).Methods("POST")
	admin.HandleFunc("/send-bulk", handler.BulkSend).Methods("POST")
}
