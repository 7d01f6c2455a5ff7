package server

// Route path constants
const (
	RouteIndex    = "/"
	RouteLogin    = "/login"
	RouteCallback = "/oauth2callback"
	RouteLogout   = "/logout"
	RouteAdd      = "/add"
	RouteHealth   = "/healthz"

	// Static Asset Routes (patterns)
	RouteStatic = "/static/{file}"
)
