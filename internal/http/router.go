package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"keepsake/internal/auth"
	"keepsake/internal/capsule"
	"keepsake/internal/config"
	"keepsake/internal/couple"
	"keepsake/internal/dates"
	"keepsake/internal/gallery"
	"keepsake/internal/http/handler"
	mw "keepsake/internal/http/middleware"
	"keepsake/internal/memory"
	"keepsake/internal/storage"
)

func NewRouter(cfg config.Config, db *gorm.DB, jwtSvc *auth.JWT, store storage.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.EchoRequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ledger := &couple.Ledger{DB: db}
	accounts := &auth.Accounts{DB: db, DefaultLimit: cfg.DefaultStorageLimit}
	up := &handler.Uploader{Store: store, Ledger: ledger, MaxBytes: cfg.MaxUploadBytes}

	ah := &handler.AuthHandler{Accounts: accounts, JWT: jwtSvc}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{Accounts: accounts, Ledger: ledger, Pairing: &couple.Pairing{
		DB:       db,
		Holdings: []any{&gallery.Photo{}, &dates.ImportantDate{}, &capsule.TimeCapsule{}, &memory.Memory{}},
	}}
	gh := &handler.GalleryHandler{Svc: &gallery.Service{DB: db, Ledger: ledger}, Up: up}
	dh := &handler.DatesHandler{Svc: &dates.Service{DB: db, Ledger: ledger}, Up: up}
	ch := &handler.CapsuleHandler{Svc: &capsule.Service{DB: db, Ledger: ledger}, Up: up}
	mh := &handler.MemoryHandler{Svc: &memory.Service{DB: db, Ledger: ledger}, Up: up}
	media := &handler.MediaHandler{Store: store}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))
		r.Use(auth.RequireCouple(db))

		r.Get("/me", me.Me)

		r.Route("/couple", func(r chi.Router) {
			r.Get("/", me.Couple)
			r.Post("/join", me.Join)
			r.Get("/usage", me.Usage)
		})

		r.Route("/gallery", func(r chi.Router) {
			r.Get("/", gh.List)
			r.Post("/", gh.Upload)
			r.Delete("/{id}", gh.Delete)
		})

		r.Route("/dates", func(r chi.Router) {
			r.Get("/", dh.Timeline)
			r.Post("/", dh.Create)
			r.Get("/upcoming", dh.Upcoming)
			r.Get("/timeline", dh.Timeline)
			r.Put("/{id}", dh.Update)
			r.Delete("/{id}", dh.Delete)
		})

		r.Route("/capsules", func(r chi.Router) {
			r.Get("/", ch.List)
			r.Post("/", ch.Create)
			r.Get("/{id}", ch.Detail)
			r.Delete("/{id}", ch.Delete)
			r.Post("/{id}/reflections", ch.Reflect)
			r.Put("/{id}/unlock-at", ch.Reschedule)
		})

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", mh.Create)
			r.Get("/", mh.List)
			r.Get("/tags", mh.Tags)
			r.Get("/{id}", mh.Get)
			r.Delete("/{id}", mh.Delete)
			r.Post("/{id}/events", mh.AppendEvent)
			r.Get("/{id}/timeline", mh.Timeline)
		})

		r.Get("/media/*", media.Serve)
	})

	return r
}
