// Package httpserver exposes the websocket endpoint viewers connect to, plus
// health, version and Prometheus routes.
package httpserver
