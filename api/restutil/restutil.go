// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package restutil provides the error and encoding helpers shared by
// the REST handlers.
package restutil

import (
	"encoding/json"
	"net/http"
)

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

// HTTPError creates an error carrying an http status code.
func HTTPError(cause error, status int) error {
	return &httpError{cause: cause, status: status}
}

// BadRequest creates an http bad request error.
func BadRequest(cause error) error {
	return &httpError{cause: cause, status: http.StatusBadRequest}
}

// NotFound creates an http not found error.
func NotFound(cause error) error {
	return &httpError{cause: cause, status: http.StatusNotFound}
}

// HandlerFunc is like http.HandlerFunc, but returns an error. An
// *httpError responds with its status, anything else with 500.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// WrapHandlerFunc converts HandlerFunc to http.HandlerFunc.
func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			if he, ok := err.(*httpError); ok {
				if he.cause != nil {
					http.Error(w, he.cause.Error(), he.status)
				} else {
					w.WriteHeader(he.status)
				}
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// WriteJSON responds with the JSON encoding of obj.
func WriteJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(obj)
}
