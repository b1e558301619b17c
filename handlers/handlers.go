package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// Response is the envelope returned by every contact operation.
type Response struct {
	Status int
	Body   any
}

type ErrorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type MessageBody struct {
	Message string `json:"message"`
}

// failure is an error already rendered for the client. Its cause is only logged.
type failure struct {
	status int
	body   any
	cause  error
}

var _ huma.StatusError = (*failure)(nil)

func fail(status int, body any, cause error) error {
	return &failure{status: status, body: body, cause: cause}
}

func (f *failure) Error() string {
	if f.cause == nil {
		return http.StatusText(f.status)
	}
	return f.cause.Error()
}

func (f *failure) Unwrap() error  { return f.cause }
func (f *failure) GetStatus() int { return f.status }

type handler[I, O any] = func(context.Context, *I) (*O, error)

// handlerWithErrorHandler passes errors returned by handler to do, then
// renders them as a [Response] so that none reaches the transport.
func handlerWithErrorHandler[I any](handler handler[I, Response], do func(context.Context, error)) handler[I, Response] {
	return func(ctx context.Context, i *I) (*Response, error) {
		o, err := handler(ctx, i)
		if err == nil {
			return o, nil
		}
		if do != nil {
			do(ctx, err)
		}
		if f := (*failure)(nil); errors.As(err, &f) {
			return &Response{Status: f.status, Body: f.body}, nil
		}
		return &Response{
			Status: http.StatusInternalServerError,
			Body:   ErrorBody{Error: "An unexpected error occurred."},
		}, nil
	}
}

func opErrors(codes ...int) func(*huma.Operation) {
	return func(o *huma.Operation) { o.Errors = codes }
}

// opRawBody hands the request body to the handler without checking it
// against the binary schema huma derives from a RawBody field. The handler
// decodes and validates it.
func opRawBody(o *huma.Operation) { o.SkipValidateBody = true }

// optionalBody lets an empty body reach the handler of the operation
// registered at method and path, under any group prefix. huma marks RawBody
// bodies required and reads the flag from the registered operation on every
// request.
func optionalBody(api huma.API, method, path string) {
	for p, item := range api.OpenAPI().Paths {
		if !strings.HasSuffix(p, path) {
			continue
		}
		var op *huma.Operation
		switch method {
		case http.MethodPost:
			op = item.Post
		case http.MethodPut:
			op = item.Put
		}
		if op != nil && op.RequestBody != nil {
			op.RequestBody.Required = false
		}
	}
}
