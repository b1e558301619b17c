package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	ds "github.com/oaiiae/contactbook/datastores"
	"github.com/oaiiae/contactbook/readcache"
	"github.com/oaiiae/contactbook/validation"
)

// PageSize is the number of contacts per listed page.
const PageSize = 10

// ReadCacheTag marks every cached list and search response. Any successful
// write invalidates the whole tag: the working set is small and staleness
// costs more than misses.
const ReadCacheTag = "read-cache"

var (
	listTags   = []string{ReadCacheTag, "contacts:list"}
	searchTags = []string{ReadCacheTag, "contacts:search"}
)

type Contacts struct {
	Store        ds.ContactsStore
	Cache        *readcache.Cache[[]ContactModel] // optional
	ErrorHandler func(context.Context, error)
}

type ContactModel struct {
	ID ds.ContactID `json:"id" readOnly:"true"`

	FirstName   string  `json:"first_name"   example:"john"`
	LastName    string  `json:"last_name"    example:"smith"`
	PhoneNumber string  `json:"phone_number" example:"5555555555"`
	Address     *string `json:"address"      example:"123 Maple St"`
}

// ContactResult reports the outcome of one element of a batch create.
type ContactResult struct {
	Status  string `json:"status" enum:"success,error"`
	Contact any    `json:"contact"`
	Message any    `json:"message,omitempty"`
}

func (h *Contacts) RegisterList(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/contacts",
		handlerWithErrorHandler(h.list, h.ErrorHandler),
		opErrors(http.StatusInternalServerError),
	)
}

type ContactsListInput struct {
	Page string `query:"page" default:"1" doc:"page to list, 10 contacts per page"`
	key  string
}

func (i *ContactsListInput) Resolve(ctx huma.Context) []error { i.key = cacheKey(ctx); return nil }

func (h *Contacts) list(ctx context.Context, input *ContactsListInput) (*Response, error) {
	page, err := strconv.Atoi(input.Page)
	if err != nil || page < 1 {
		page = 1
	}
	page = min(page, math.MaxInt/PageSize)

	body, err := h.load(ctx, input.key, listTags, func(ctx context.Context) ([]*ds.Contact, error) {
		return h.Store.List(ctx, (page-1)*PageSize, PageSize)
	})
	if err != nil {
		return nil, fail(http.StatusInternalServerError,
			ErrorBody{Error: "An error occurred while retrieving contacts."}, err)
	}
	return &Response{Status: http.StatusOK, Body: body}, nil
}

func (h *Contacts) RegisterSearch(api huma.API) { // called by [huma.AutoRegister]
	huma.Get(api, "/contacts/search",
		handlerWithErrorHandler(h.search, h.ErrorHandler),
		opErrors(http.StatusInternalServerError),
	)
}

type ContactsSearchInput struct {
	Q   string `query:"q" doc:"case-insensitive substring of the first or last name, empty matches all"`
	key string
}

func (i *ContactsSearchInput) Resolve(ctx huma.Context) []error { i.key = cacheKey(ctx); return nil }

func (h *Contacts) search(ctx context.Context, input *ContactsSearchInput) (*Response, error) {
	body, err := h.load(ctx, input.key, searchTags, func(ctx context.Context) ([]*ds.Contact, error) {
		return h.Store.Search(ctx, input.Q)
	})
	if err != nil {
		return nil, fail(http.StatusInternalServerError,
			ErrorBody{Error: "An error occurred while searching contacts."}, err)
	}
	return &Response{Status: http.StatusOK, Body: body}, nil
}

func (h *Contacts) RegisterCreate(api huma.API) { // called by [huma.AutoRegister]
	huma.Post(api, "/contacts",
		handlerWithErrorHandler(h.create, h.ErrorHandler),
		opErrors(http.StatusBadRequest),
		opRawBody,
	)
	optionalBody(api, http.MethodPost, "/contacts")
}

func (h *Contacts) create(ctx context.Context, input *struct {
	RawBody []byte `contentType:"application/json"`
}) (*Response, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(input.RawBody, &items); err != nil || items == nil {
		return nil, fail(http.StatusBadRequest,
			ErrorBody{Error: "Invalid input format, expected a list of contacts"}, err)
	}

	results := make([]ContactResult, 0, len(items))
	for _, raw := range items {
		results = append(results, h.createOne(ctx, raw))
	}
	return &Response{Status: http.StatusOK, Body: results}, nil
}

// createOne validates and inserts a single batch element. Failures are
// reported in the result and never affect sibling elements.
func (h *Contacts) createOne(ctx context.Context, raw json.RawMessage) ContactResult {
	rejected := func(status int, message any, cause error) ContactResult {
		h.report(ctx, fail(status, nil, cause))
		return ContactResult{Status: "error", Contact: raw, Message: message}
	}

	input, err := validation.DecodeContact(raw)
	if err != nil {
		return rejected(http.StatusBadRequest, validationBody(err), err)
	}

	// The pre-check only improves the message, the store enforces uniqueness.
	switch _, err = h.Store.GetByPhone(ctx, input.Phone()); {
	case err == nil:
		return rejected(http.StatusConflict, "A contact with this phone number already exists.",
			fmt.Errorf("create %s: %w", input.Phone(), ds.ErrDuplicatePhone))
	case !errors.Is(err, ds.ErrObjectNotFound):
		return rejected(http.StatusInternalServerError, "An unexpected error occurred.", err)
	}

	contact := toContact(input)
	_, err = h.Store.Create(ctx, contact)
	switch {
	case err == nil:
		h.invalidate()
		return ContactResult{Status: "success", Contact: toModel(contact)}
	case errors.Is(err, ds.ErrDuplicatePhone):
		return rejected(http.StatusConflict, "Phone number already exists", err)
	case errors.Is(err, ds.ErrIntegrity):
		return rejected(http.StatusBadRequest, "Integrity error occurred", err)
	default:
		return rejected(http.StatusInternalServerError, "An unexpected error occurred.", err)
	}
}

func (h *Contacts) RegisterUpdate(api huma.API) { // called by [huma.AutoRegister]
	huma.Put(api, "/contacts/phone/{phone}",
		handlerWithErrorHandler(h.update, h.ErrorHandler),
		opErrors(http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError),
		opRawBody,
	)
	optionalBody(api, http.MethodPut, "/contacts/phone/{phone}")
}

func (h *Contacts) update(ctx context.Context, input *struct {
	Phone   string `path:"phone" example:"5555555555" doc:"current phone number of the contact to update"`
	RawBody []byte `contentType:"application/json"`
}) (*Response, error) {
	const (
		integrityMessage  = "An error occurred while updating the contact. Please ensure the data is correct."
		unexpectedMessage = "An unexpected error occurred while updating the contact."
	)

	phone := validation.CanonicalPhone(input.Phone)
	_, err := h.Store.GetByPhone(ctx, phone)
	switch {
	case errors.Is(err, ds.ErrObjectNotFound):
		return nil, fail(http.StatusNotFound, MessageBody{Message: "The number does not exist"}, err)
	case err != nil:
		return nil, fail(http.StatusInternalServerError, ErrorBody{Error: unexpectedMessage}, err)
	}

	contact, err := validation.DecodeContact(input.RawBody)
	if err != nil {
		return nil, fail(http.StatusBadRequest, validationBody(err), err)
	}

	updated, err := h.Store.UpdateByPhone(ctx, phone, toContact(contact))
	switch {
	case err == nil:
		h.invalidate()
		return &Response{Status: http.StatusOK, Body: toModel(updated)}, nil
	case errors.Is(err, ds.ErrObjectNotFound):
		return nil, fail(http.StatusNotFound, MessageBody{Message: "The number does not exist"}, err)
	case errors.Is(err, ds.ErrDuplicatePhone), errors.Is(err, ds.ErrIntegrity):
		return nil, fail(http.StatusBadRequest, ErrorBody{Error: integrityMessage}, err)
	default:
		return nil, fail(http.StatusInternalServerError, ErrorBody{Error: unexpectedMessage}, err)
	}
}

func (h *Contacts) RegisterDelete(api huma.API) { // called by [huma.AutoRegister]
	huma.Delete(api, "/contacts/phone/{phone}",
		handlerWithErrorHandler(h.del, h.ErrorHandler),
		opErrors(http.StatusNotFound, http.StatusInternalServerError),
	)
}

func (h *Contacts) del(ctx context.Context, input *struct {
	Phone string `path:"phone" example:"5555555555" doc:"phone number of the contact to delete"`
}) (*Response, error) {
	err := h.Store.DeleteByPhone(ctx, validation.CanonicalPhone(input.Phone))
	switch {
	case err == nil:
		h.invalidate()
		return &Response{Status: http.StatusOK, Body: MessageBody{
			Message: fmt.Sprintf("Contact with phone number %s deleted", input.Phone),
		}}, nil
	case errors.Is(err, ds.ErrObjectNotFound):
		return nil, fail(http.StatusNotFound, MessageBody{Message: "The number does not exist"}, err)
	default:
		return nil, fail(http.StatusInternalServerError,
			ErrorBody{Error: "An error occurred while deleting contact."}, err)
	}
}

// load reads through the cache when there is one.
func (h *Contacts) load(
	ctx context.Context,
	key string,
	tags []string,
	query func(context.Context) ([]*ds.Contact, error),
) ([]ContactModel, error) {
	fetch := func(ctx context.Context) ([]ContactModel, error) {
		contacts, err := query(ctx)
		if err != nil {
			return nil, err
		}
		return toModels(contacts), nil
	}
	if h.Cache == nil {
		return fetch(ctx)
	}
	return h.Cache.Load(ctx, key, tags, fetch)
}

func (h *Contacts) invalidate() {
	if h.Cache != nil {
		h.Cache.Invalidate(ReadCacheTag)
	}
}

func (h *Contacts) report(ctx context.Context, err error) {
	if h.ErrorHandler != nil {
		h.ErrorHandler(ctx, err)
	}
}

// cacheKey is the route followed by the query string with sorted keys.
func cacheKey(ctx huma.Context) string {
	u := ctx.URL()
	return ctx.Operation().Path + "?" + u.Query().Encode()
}

func validationBody(err error) ErrorBody {
	body := ErrorBody{Error: "Validation failed"}
	if verr := (*validation.ValidationError)(nil); errors.As(err, &verr) {
		body.Details = verr.Errors
	}
	return body
}

func toContact(c *validation.Contact) *ds.Contact {
	return &ds.Contact{
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		PhoneNumber: c.Phone(),
		Address:     c.Address,
	}
}

func toModel(c *ds.Contact) ContactModel {
	return ContactModel{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		PhoneNumber: c.PhoneNumber,
		Address:     c.Address,
	}
}

func toModels(contacts []*ds.Contact) []ContactModel {
	body := make([]ContactModel, 0, len(contacts))
	for _, contact := range contacts {
		body = append(body, toModel(contact))
	}
	return body
}
