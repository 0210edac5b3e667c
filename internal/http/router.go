package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/realtime-chat/api-server/internal/handlers"
	"github.com/realtime-chat/api-server/internal/service"
)

// NewRouter はAPI全体のルーティングを構築します
// /api/auth/register と /api/auth/login 以外のAPIは認証必須です
func NewRouter(authSvc *service.AuthService, authH *handlers.AuthHandler, roomH *handlers.RoomHandler, wsH *handlers.WebSocketHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	requireAuth := handlers.Authenticate(authSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authH.Register)
		r.Post("/login", authH.Login)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/verify", authH.Verify)
			r.Put("/profile", authH.UpdateProfile)
			r.Delete("/account", authH.DeleteAccount)
		})
	})

	r.Route("/api/rooms", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", roomH.List)
		r.Post("/", roomH.Create)
		r.Post("/{roomId}/join", roomH.Join)
		r.Post("/{roomId}/leave", roomH.Leave)
		r.Get("/{roomId}/messages", roomH.GetMessages)
		r.Get("/{roomId}/messages/since", roomH.GetMessagesSince)
		r.Post("/{roomId}/messages", roomH.PostMessage)
	})

	// リアルタイムゲートウェイ（認証はハンドシェイク時にハンドラー内で行う）
	r.Get("/ws", wsH.HandleWebSocket)

	return r
}
