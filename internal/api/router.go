package api

import (
	"log"
	"net/http"
	"strings"

	authmw "github.com/example/agrimarket/internal/api/middleware"
	"github.com/example/agrimarket/internal/auth"
)

func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, jwtService *auth.JWTService) http.Handler {
	mux := http.NewServeMux()

	requireAuth := authmw.AuthMiddleware(jwtService)
	adminOnly := authmw.RequireRole(auth.RoleAdmin)

	// Auth
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Register(w, r)
	})

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Login(w, r)
	})

	// Orders
	mux.Handle("/orders", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetOrders(w, r)
		case http.MethodPost:
			handlers.PlaceOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/orders/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/status") && r.Method == http.MethodPost:
			handlers.UpdateOrderStatus(w, r)
		case strings.HasSuffix(path, "/cancel") && r.Method == http.MethodPost:
			handlers.CancelOrder(w, r)
		case strings.HasSuffix(path, "/next-status") && r.Method == http.MethodGet:
			handlers.GetNextStatus(w, r)
		case strings.HasSuffix(path, "/settlement") && r.Method == http.MethodPost:
			handlers.SubmitSettlement(w, r)
		case strings.HasSuffix(path, "/payment-status") && r.Method == http.MethodPost:
			adminOnly(http.HandlerFunc(handlers.SetPaymentStatus)).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/events") && r.Method == http.MethodGet:
			adminOnly(http.HandlerFunc(handlers.GetOrderEvents)).ServeHTTP(w, r)
		case r.Method == http.MethodGet:
			handlers.GetOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Settlement verification (polled by the verifier worker, exposed for
	// admins to poke a stuck transaction)
	mux.Handle("/transactions/", requireAuth(adminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/verify") && r.Method == http.MethodPost {
			handlers.VerifySettlement(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}))))

	// Notifications
	mux.Handle("/notifications", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.GetNotifications(w, r)
	})))

	mux.Handle("/notifications/unread-count", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.GetUnreadCount(w, r)
	})))

	mux.Handle("/notifications/read-all", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.MarkAllNotificationsRead(w, r)
	})))

	mux.Handle("/notifications/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/read") && r.Method == http.MethodPost:
			handlers.MarkNotificationRead(w, r)
		case r.Method == http.MethodDelete:
			handlers.DeleteNotification(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[API] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
