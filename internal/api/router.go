package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/territory-studio/engine/internal/api/handlers"
	mw "github.com/territory-studio/engine/internal/api/middleware"
)

// maxBodyBytes bounds request bodies; whole-document imports are the largest.
const maxBodyBytes = 32 << 20

type Dependencies struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	HealthHandler      *handlers.HealthHandler
	RegionsHandler     *handlers.RegionsHandler
	TerritoriesHandler *handlers.TerritoriesHandler
	GroupsHandler      *handlers.GroupsHandler
	DocumentHandler    *handlers.DocumentHandler
	EventsHandler      *handlers.EventsHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	// Built-in middleware
	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS(dep.CORSOrigins))
	r.Use(mw.RateLimit(dep.RateLimitRPS, dep.RateLimitBurst))
	r.Use(chimid.Compress(5))

	// Health endpoints
	hh := dep.HealthHandler
	if hh == nil {
		hh = handlers.NewHealthHandler()
	}
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(chimid.RequestSize(maxBodyBytes))

		api.Route("/regions", func(rr chi.Router) {
			rr.Get("/", dep.RegionsHandler.List)
			rr.Post("/", dep.RegionsHandler.Create)
			rr.Get("/hit", dep.RegionsHandler.Hit)
			rr.Post("/simplify", dep.RegionsHandler.Simplify)
			rr.Post("/rebuild-index", dep.RegionsHandler.RebuildIndex)
			rr.Get("/{id}", dep.RegionsHandler.Get)
			rr.Put("/{id}", dep.RegionsHandler.UpdatePolygon)
			rr.Delete("/{id}", dep.RegionsHandler.Delete)
			rr.Patch("/{id}/vertex", dep.RegionsHandler.MoveVertex)
			rr.Put("/{id}/assignment", dep.RegionsHandler.Assign)
			rr.Delete("/{id}/assignment", dep.RegionsHandler.Unassign)
		})
		api.Get("/boundary", dep.RegionsHandler.Boundary)

		api.Route("/territories", func(tr chi.Router) {
			tr.Get("/", dep.TerritoriesHandler.List)
			tr.Post("/", dep.TerritoriesHandler.Create)
			tr.Get("/unplaced", dep.TerritoriesHandler.Unplaced)
			tr.Get("/{id}", dep.TerritoriesHandler.Get)
			tr.Patch("/{id}", dep.TerritoriesHandler.Update)
			tr.Put("/{id}/polygon", dep.TerritoriesHandler.UpdatePolygon)
			tr.Delete("/{id}", dep.TerritoriesHandler.Delete)
			tr.Post("/{id}/assignments", dep.TerritoriesHandler.AddAssignment)
			tr.Patch("/{id}/assignments/{assignmentID}", dep.TerritoriesHandler.UpdateAssignment)
			tr.Delete("/{id}/assignments/{assignmentID}", dep.TerritoriesHandler.DeleteAssignment)
		})
		api.Get("/stats", dep.TerritoriesHandler.Stats)

		api.Route("/groups", func(gr chi.Router) {
			gr.Get("/", dep.GroupsHandler.List)
			gr.Post("/", dep.GroupsHandler.Create)
			gr.Get("/{id}", dep.GroupsHandler.Get)
			gr.Patch("/{id}", dep.GroupsHandler.Update)
			gr.Delete("/{id}", dep.GroupsHandler.Delete)
		})

		api.Route("/document", func(dr chi.Router) {
			dr.Get("/", dep.DocumentHandler.Export)
			dr.Put("/", dep.DocumentHandler.Import)
			dr.Get("/revisions", dep.DocumentHandler.Revisions)
			dr.Post("/revisions/restore", dep.DocumentHandler.Restore)
		})

		api.Get("/events", dep.EventsHandler.Stream)
	})

	return r
}
