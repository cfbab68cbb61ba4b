package api

const (
	HealthCheckRoute = "/healthz"
	AboutRoute       = "/about"
	MetricsRoute     = "/metrics"

	// APIPrefix is where the dev server mounts the gitdm API. Client routes
	// below are relative to the configured API base URL.
	APIPrefix = "/api"

	TokenRoute        = "/token/"
	TokenRefreshRoute = TokenRoute + "refresh/"

	// AuditRoute lists the caller's own token grants (dev server only).
	AuditRoute = "/audit/"

	ResourceListRoute   = "/{resource}/"
	ResourceDetailRoute = "/{resource}/{id}/"
)
