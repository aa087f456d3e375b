package testutil

import (
	"net/http"

	"labelcheck/pkg/domain"
	"labelcheck/pkg/requestcontext"
)

// WithActor attaches an actor to the request the way the auth middleware does.
func WithActor(req *http.Request, actor domain.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// AsOfficer attaches an officer actor with the given id.
func AsOfficer(req *http.Request, id string) *http.Request {
	return WithActor(req, domain.Actor{ID: id, Role: domain.RoleOfficer})
}

// AsManager attaches a manager actor with the given id.
func AsManager(req *http.Request, id string) *http.Request {
	return WithActor(req, domain.Actor{ID: id, Role: domain.RoleManager})
}
