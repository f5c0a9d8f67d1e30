package swap

import (
	"errors"
	"fmt"
)

// Route is a navigable step of the hosting UI.
type Route string

const (
	RouteHome   Route = "home"
	RouteCreate Route = "create"
	RouteInput  Route = "input"
	RouteSwap   Route = "swap"
)

// ErrUnknownRoute is returned by ParseRoute.
var ErrUnknownRoute = errors.New("unknown route")

// ParseRoute parses a route identifier.
func ParseRoute(s string) (Route, error) {
	switch r := Route(s); r {
	case RouteHome, RouteCreate, RouteInput, RouteSwap:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRoute, s)
}

// RouteFor returns the only route allowed to display status.
func RouteFor(status Status) Route {
	switch {
	case status == StatusCreatingNewSwap:
		return RouteCreate
	case status == StatusLoadingExistingSwap:
		return RouteInput
	case status.IsRemote():
		return RouteSwap
	default:
		return RouteHome
	}
}

// LocalStatusFor is the status implied by the route when no transaction is
// loaded.
func LocalStatusFor(route Route) Status {
	switch route {
	case RouteCreate:
		return StatusCreatingNewSwap
	case RouteInput:
		return StatusLoadingExistingSwap
	}
	return StatusNone
}

// EnforceRoute returns the route to redirect to when current cannot show
// status. No redirect happens while a file is being validated.
func EnforceRoute(current Route, status Status, validating bool) (Route, bool) {
	if validating {
		return "", false
	}
	target := RouteFor(status)
	if current == target {
		return "", false
	}
	return target, true
}

// Navigator receives redirects issued by the session.
type Navigator interface {
	Redirect(to Route)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(to Route)

// Redirect calls f(to).
func (f NavigatorFunc) Redirect(to Route) {
	f(to)
}
