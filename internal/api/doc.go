// Package api holds the wire shapes the session client exchanges with the
// fund-management service, plus the classification helpers applied to its
// failure responses. Nothing here is exported outside the module.
package api
