package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"storyboardgen/internal/http/handlers"
	"storyboardgen/internal/middleware"
)

type Options struct {
	Logger          zerolog.Logger
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	// Static serves signed blob URLs when the filesystem driver is active.
	Static http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/billing/webhook", app.BillingWebhook)
	if opts.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static", opts.Static))
	}

	limiter := middleware.NewRateLimiter(opts.RateLimitPerMin)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Get("/v1/usage", app.GetUsage)
		r.Post("/v1/captions", app.GenerateCaptions)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/v1/generations", app.Generate)
			r.Post("/v1/generations/regenerate", app.Regenerate)
		})

		r.Route("/v1/presets", func(r chi.Router) {
			r.Get("/", app.ListPresets)
			r.Post("/", app.SavePreset)
			r.Delete("/{id}", app.DeletePreset)
		})

		r.Route("/v1/projects", func(r chi.Router) {
			r.Get("/", app.ListProjects)
			r.Get("/{id}", app.GetProject)
			r.Delete("/{id}", app.DeleteProject)
			r.Get("/{id}/archive", app.ProjectArchive)
		})
	})

	return r
}
