package kernel

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/gorilla/mux"
)

//go:embed openapi.yaml
var openAPISpec []byte

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// validateRequests checks each request against the operation matching its
// mux route template. Routes the document does not describe pass through.
func validateRequests(doc *openapi3.T) mux.MiddlewareFunc {
	opts := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := mux.CurrentRoute(r)
			if route == nil {
				next.ServeHTTP(w, r)
				return
			}
			tmpl, err := route.GetPathTemplate()
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			item := doc.Paths.Find(tmpl)
			if item == nil {
				next.ServeHTTP(w, r)
				return
			}
			op := item.GetOperation(r.Method)
			if op == nil {
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: mux.Vars(r),
				Route: &routers.Route{
					Spec:      doc,
					Path:      tmpl,
					PathItem:  item,
					Method:    r.Method,
					Operation: op,
				},
				Options: opts,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
