package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/daijir/scripture-habit/internal/handlers"
	"github.com/daijir/scripture-habit/internal/middleware"
)

func SetupRoutes(r chi.Router, tokens middleware.TokenParser) {
	// Sync socket authenticates with its own session token
	r.Get("/ws/sync", handlers.SyncWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser(tokens))
		r.Use(middleware.ActionRateLimit)

		// Sessions
		r.With(middleware.SessionRateLimit).Post("/api/sessions", handlers.CreateSession)
		r.Delete("/api/sessions", handlers.DeleteSession)

		// Profile and dashboard
		r.Get("/api/profile", handlers.GetProfile)
		r.Patch("/api/profile", handlers.UpdateProfile)
		r.Delete("/api/profile", handlers.DeleteAccount)
		r.Get("/api/dashboard", handlers.GetDashboard)

		// Groups
		r.Post("/api/groups", handlers.CreateGroup)
		r.Post("/api/groups/join", handlers.JoinGroup)
		r.Post("/api/groups/{groupID}/leave", handlers.LeaveGroup)
		r.Delete("/api/groups/{groupID}", handlers.DeleteGroup)
		r.Post("/api/groups/{groupID}/recap", handlers.WeeklyRecap)

		// Messages
		r.Post("/api/groups/{groupID}/messages", handlers.SendMessage)
		r.Put("/api/groups/{groupID}/messages/{messageID}", handlers.EditMessage)
		r.Delete("/api/groups/{groupID}/messages/{messageID}", handlers.DeleteMessage)
		r.Post("/api/groups/{groupID}/messages/{messageID}/reactions", handlers.ToggleReaction)
		r.Post("/api/groups/{groupID}/read", handlers.AcknowledgeRead)

		// Notes
		r.Get("/api/notes", handlers.GetNotes)
		r.Post("/api/notes", handlers.PostNote)
		r.Put("/api/notes/{noteID}", handlers.EditNote)
		r.Delete("/api/notes/{noteID}", handlers.DeleteNote)
		r.Post("/api/notes/backfill", handlers.BackfillNotes)

		// Push permission and banners
		r.Get("/api/push", handlers.GetPushStatus)
		r.Post("/api/push", handlers.SetPushPermission)
		r.Post("/api/push/prompted", handlers.MarkPushPrompted)
		r.Delete("/api/push", handlers.RevokePush)
		r.Get("/api/banners/{banner}", handlers.GetBanner)
		r.Post("/api/banners/{banner}/dismiss", handlers.DismissBanner)

		// Side-service tools
		r.Get("/api/link-preview", handlers.LinkPreview)
		r.Post("/api/questions", handlers.GenerateQuestions)
		r.Post("/api/translate", handlers.Translate)
	})
}
