// Package api implements the public routes: welcome, users, info, data
// submission and file upload.
//
// Handlers return errors and never write error bodies themselves; apierr is
// the single boundary that turns failures into responses.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/filestore"
	"github.com/keithlinneman/linnemanlabs-api/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-api/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-api/internal/store"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// Route names double as rate limit keys and metric labels.
const (
	RouteRoot   = "/"
	RouteUsers  = "/users"
	RouteUser   = "/users/{id}"
	RouteInfo   = "/info"
	RouteData   = "/data"
	RouteUpload = "/upload"
)

const (
	DefaultMaxBodyBytes   int64 = 1 << 20
	DefaultMaxUploadBytes int64 = 5 << 20
)

// DefaultQuotas are the per-client limits of each route.
func DefaultQuotas() map[string]ratelimit.Quota {
	return map[string]ratelimit.Quota{
		RouteRoot:   ratelimit.PerMinute(10),
		RouteUsers:  ratelimit.PerMinute(5),
		RouteUser:   ratelimit.PerMinute(5),
		RouteInfo:   ratelimit.PerMinute(20),
		RouteData:   ratelimit.PerMinute(3),
		RouteUpload: ratelimit.PerMinute(5),
	}
}

// Hooks receives domain events, typically metrics.
type Hooks interface {
	IncValidationFailure(route, kind string)
	IncUsersCreated()
	ObserveUpload(store string, size int64)
}

type nopHooks struct{}

func (nopHooks) IncValidationFailure(string, string) {}
func (nopHooks) IncUsersCreated()                    {}
func (nopHooks) ObserveUpload(string, int64)         {}

type Options struct {
	AppName    string
	AppVersion string
	AppEnv     string

	Users store.UserStore
	Files filestore.Store

	// Limiter is optional; without it routes are unlimited.
	Limiter *ratelimit.Limiter
	Hooks   Hooks

	MaxBodyBytes   int64
	MaxUploadBytes int64

	// Started is the process start used for uptime; Now is the clock.
	Started time.Time
	Now     func() time.Time
}

type API struct {
	appName    string
	appVersion string
	appEnv     string

	users   store.UserStore
	files   filestore.Store
	limiter *ratelimit.Limiter
	hooks   Hooks

	maxBody   int64
	maxUpload int64

	started time.Time
	now     func() time.Time

	validate *validator.Validate
}

func New(opts Options) (*API, error) {
	if opts.Users == nil {
		return nil, xerrors.New("api: user store is required")
	}
	if opts.Files == nil {
		return nil, xerrors.New("api: file store is required")
	}
	if opts.Hooks == nil {
		opts.Hooks = nopHooks{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Started.IsZero() {
		opts.Started = opts.Now()
	}

	return &API{
		appName:    opts.AppName,
		appVersion: opts.AppVersion,
		appEnv:     opts.AppEnv,
		users:      opts.Users,
		files:      opts.Files,
		limiter:    opts.Limiter,
		hooks:      opts.Hooks,
		maxBody:    opts.MaxBodyBytes,
		maxUpload:  opts.MaxUploadBytes,
		started:    opts.Started,
		now:        opts.Now,
		validate:   newValidator(),
	}, nil
}

// RegisterRoutes attaches the public routes. Each route gets its own rate
// limit; body routes also get content type and size checks.
func (a *API) RegisterRoutes(r chi.Router) {
	quotas := DefaultQuotas()

	jsonBody := httpmw.BodyOptions{
		AllowedTypes: []string{"application/json"},
		MaxBytes:     a.maxBody,
	}
	// headroom above the file limit so slightly oversized files reach the
	// handler and get its specific message
	uploadLimit := 2 * a.maxUpload
	uploadBody := httpmw.BodyOptions{
		AllowedTypes: []string{"multipart/form-data"},
		MaxBytes:     uploadLimit,
	}

	r.With(a.limit(RouteRoot, quotas)).Get(RouteRoot, a.handle(RouteRoot, a.root))
	r.With(a.limit(RouteUsers, quotas)).Get(RouteUsers, a.handle(RouteUsers, a.listUsers))
	r.With(a.limit(RouteUser, quotas)).Get(RouteUser, a.handle(RouteUser, a.getUser))
	r.With(a.limit(RouteInfo, quotas)).Get(RouteInfo, a.handle(RouteInfo, a.info))

	r.With(
		a.limit(RouteData, quotas),
		httpmw.ValidateBody(jsonBody),
		httpmw.MaxBody(a.maxBody),
	).Post(RouteData, a.handle(RouteData, a.createData))

	r.With(
		a.limit(RouteUpload, quotas),
		httpmw.ValidateBody(uploadBody),
		httpmw.MaxBody(uploadLimit),
	).Post(RouteUpload, a.handle(RouteUpload, a.upload))
}

// limit tags the request with its handler and applies the route's quota.
func (a *API) limit(route string, quotas map[string]ratelimit.Quota) func(http.Handler) http.Handler {
	scope := httpmw.Scope(route)
	if a.limiter == nil {
		return scope
	}
	limit := a.limiter.Limit(route, quotas[route])
	return func(next http.Handler) http.Handler { return scope(limit(next)) }
}

// handle counts client-input rejections before handing the error to apierr.
func (a *API) handle(route string, fn apierr.HandlerFunc) http.HandlerFunc {
	return apierr.Handle(func(w http.ResponseWriter, r *http.Request) error {
		err := fn(w, r)
		if err == nil {
			return nil
		}
		switch k := apierr.KindOf(err); k {
		case apierr.Validation, apierr.BadRequest, apierr.PayloadTooLarge:
			a.hooks.IncValidationFailure(route, k.String())
		}
		return err
	})
}
