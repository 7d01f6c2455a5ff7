package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/ingredient-sheets/credentials"
	"github.com/jrsteele09/ingredient-sheets/internal/config"
	"github.com/jrsteele09/ingredient-sheets/oauthflow"
	"github.com/jrsteele09/ingredient-sheets/provisioning"
	"github.com/jrsteele09/ingredient-sheets/sessions"
	"github.com/jrsteele09/ingredient-sheets/spreadsheet"
	"github.com/rs/zerolog/log"
)

// Services are the collaborators the HTTP surface orchestrates.
type Services struct {
	Sessions     *sessions.Manager
	Flow         *oauthflow.Controller
	Credentials  *credentials.Store
	Provisioning *provisioning.Service
	Sheets       spreadsheet.Factory
}

func (svc Services) validate() error {
	switch {
	case svc.Sessions == nil:
		return errors.New("session manager is required")
	case svc.Flow == nil:
		return errors.New("authorization flow controller is required")
	case svc.Credentials == nil:
		return errors.New("credential store is required")
	case svc.Provisioning == nil:
		return errors.New("provisioning service is required")
	case svc.Sheets == nil:
		return errors.New("spreadsheet factory is required")
	}
	return nil
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	appName string
	mux     *http.ServeMux
	routes  []string

	sessions    *sessions.Manager
	flow        *oauthflow.Controller
	creds       *credentials.Store
	provisioner *provisioning.Service
	sheets      spreadsheet.Factory

	indexTmpl *template.Template
	errorTmpl *template.Template
}

func New(cfg config.EnvConfig, svc Services) (*Server, error) {
	if err := svc.validate(); err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}

	s := &Server{
		env:         cfg.GetEnv(),
		appName:     cfg.GetAppName(),
		mux:         http.NewServeMux(),
		sessions:    svc.Sessions,
		flow:        svc.Flow,
		creds:       svc.Credentials,
		provisioner: svc.Provisioning,
		sheets:      svc.Sheets,
	}

	var err error
	if s.indexTmpl, err = ParseTemplate("index.html"); err != nil {
		return nil, fmt.Errorf("[Server New] parse index template: %w", err)
	}
	if s.errorTmpl, err = ParseTemplate("error.html"); err != nil {
		return nil, fmt.Errorf("[Server New] parse error template: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) isDev() bool {
	return strings.EqualFold(s.env, "DEV")
}

func (s *Server) logRoutes() {
	if !s.isDev() {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", colouredMethod(method), path)
}
