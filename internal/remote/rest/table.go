package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/remote"
)

const (
	restPrefix     = "/rest/v1/"
	preferMinimal  = "return=minimal"
	filterOperator = "eq."
)

// table is one PostgREST resource.
type table[R any, P any] struct {
	c    *Client
	name string
}

func (t *table[R, P]) path() string { return restPrefix + t.name }

func (t *table[R, P]) List(ctx context.Context, columns []string, filters ...remote.Filter) ([]R, error) {
	q, err := filterQuery(filters)
	if err != nil {
		return nil, err
	}
	if len(columns) > 0 {
		q.Set("select", strings.Join(columns, ","))
	}
	bearer, err := t.c.auth.bearer(ctx)
	if err != nil {
		return nil, err
	}

	var rows []R
	if err := t.c.do(ctx, request{method: http.MethodGet, path: t.path(), query: q, bearer: bearer}, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []R{}
	}
	return rows, nil
}

func (t *table[R, P]) Insert(ctx context.Context, rows ...R) error {
	if len(rows) == 0 {
		return nil
	}
	bearer, err := t.c.auth.bearer(ctx)
	if err != nil {
		return err
	}
	return t.c.do(ctx, request{
		method: http.MethodPost,
		path:   t.path(),
		body:   rows,
		bearer: bearer,
		prefer: preferMinimal,
	}, nil)
}

func (t *table[R, P]) Update(ctx context.Context, patch P, filters ...remote.Filter) error {
	if len(filters) == 0 {
		return missingFilter(http.MethodPatch, t.name)
	}
	q, err := filterQuery(filters)
	if err != nil {
		return err
	}
	bearer, err := t.c.auth.bearer(ctx)
	if err != nil {
		return err
	}
	return t.c.do(ctx, request{
		method: http.MethodPatch,
		path:   t.path(),
		query:  q,
		body:   patch,
		bearer: bearer,
		prefer: preferMinimal,
	}, nil)
}

func (t *table[R, P]) Delete(ctx context.Context, filters ...remote.Filter) error {
	if len(filters) == 0 {
		return missingFilter(http.MethodDelete, t.name)
	}
	q, err := filterQuery(filters)
	if err != nil {
		return err
	}
	bearer, err := t.c.auth.bearer(ctx)
	if err != nil {
		return err
	}
	return t.c.do(ctx, request{
		method: http.MethodDelete,
		path:   t.path(),
		query:  q,
		bearer: bearer,
		prefer: preferMinimal,
	}, nil)
}

// filterQuery encodes filters as col=eq.value pairs.
func filterQuery(filters []remote.Filter) (url.Values, error) {
	q := url.Values{}
	for _, f := range filters {
		if f.Column == "" || f.Value == nil {
			return nil, &errs.RemoteError{Message: "filter needs a column and a value", Err: errs.ErrValidation}
		}
		q.Add(f.Column, filterOperator+fmt.Sprint(f.Value))
	}
	return q, nil
}

func missingFilter(method, table string) error {
	return &errs.RemoteError{
		Message: fmt.Sprintf("%s %s without filter", method, table),
		Err:     errs.ErrMissingFilter,
	}
}
