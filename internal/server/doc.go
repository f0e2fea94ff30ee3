// Package server exposes a store over HTTP: state reads, dispatch,
// full-state replacement, Prometheus metrics and the devtools websocket.
//
// The router is chi; handlers speak canonical JSON so responses are
// byte-stable for equal states.
package server
