package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/service"
)

const (
	selectParam    = "select"
	filterOperator = "eq."

	preferRepresentation = "return=representation"
)

// tableOps adapts one table of TableService to untyped wire rows.
type tableOps struct {
	list   func(ctx context.Context, uid uuid.UUID, f []service.RawFilter) ([]any, error)
	insert func(ctx context.Context, uid uuid.UUID, body []byte) ([]any, error)
	update func(ctx context.Context, uid uuid.UUID, body []byte, f []service.RawFilter) (int64, error)
	delete func(ctx context.Context, uid uuid.UUID, f []service.RawFilter) (int64, error)
}

func newTableOps(svc service.TableService) map[string]tableOps {
	if svc == nil {
		return map[string]tableOps{}
	}
	return map[string]tableOps{
		convert.TableTopics: {
			list: func(ctx context.Context, uid uuid.UUID, f []service.RawFilter) ([]any, error) {
				ts, err := svc.ListTopics(ctx, uid, f)
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(ts))
				for _, t := range ts {
					out = append(out, convert.FromTopic(t))
				}
				return out, nil
			},
			insert: func(ctx context.Context, uid uuid.UUID, body []byte) ([]any, error) {
				rows, err := decodeRows[convert.TopicRow](body)
				if err != nil {
					return nil, err
				}
				ts, err := svc.InsertTopics(ctx, uid, rows)
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(ts))
				for _, t := range ts {
					out = append(out, convert.FromTopic(t))
				}
				return out, nil
			},
			update: func(ctx context.Context, uid uuid.UUID, body []byte, f []service.RawFilter) (int64, error) {
				var p convert.TopicPatch
				if err := decodeStrict(body, &p); err != nil {
					return 0, err
				}
				return svc.UpdateTopics(ctx, uid, p, f)
			},
			delete: func(ctx context.Context, uid uuid.UUID, f []service.RawFilter) (int64, error) {
				return svc.DeleteTopics(ctx, uid, f)
			},
		},
		convert.TableSubtopics: {
			list: func(ctx context.Context, uid uuid.UUID, f []service.RawFilter) ([]any, error) {
				ss, err := svc.ListSubtopics(ctx, uid, f)
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(ss))
				for _, st := range ss {
					out = append(out, convert.FromSubtopic(st, uid))
				}
				return out, nil
			},
			insert: func(ctx context.Context, uid uuid.UUID, body []byte) ([]any, error) {
				rows, err := decodeRows[convert.SubtopicRow](body)
				if err != nil {
					return nil, err
				}
				ss, err := svc.InsertSubtopics(ctx, uid, rows)
				if err != nil {
					return nil, err
				}
				out := make([]any, 0, len(ss))
				for _, st := range ss {
					out = append(out, convert.FromSubtopic(st, uid))
				}
				return out, nil
			},
			update: func(ctx context.Context, uid uuid.UUID, body []byte, f []service.RawFilter) (int64, error) {
				var p convert.SubtopicPatch
				if err := decodeStrict(body, &p); err != nil {
					return 0, err
				}
				return svc.UpdateSubtopics(ctx, uid, p, f)
			},
			delete: func(ctx context.Context, uid uuid.UUID, f []service.RawFilter) (int64, error) {
				return svc.DeleteSubtopics(ctx, uid, f)
			},
		},
	}
}

func (s *Server) resolve(r *http.Request) (tableOps, uuid.UUID, error) {
	table := r.PathValue("table")
	ops, ok := s.tables[table]
	if !ok {
		return tableOps{}, uuid.Nil, fmt.Errorf("%w: table %q", errs.ErrNotFound, table)
	}
	uid, ok := UserIDFromCtx(r.Context())
	if !ok {
		return tableOps{}, uuid.Nil, errs.ErrUnauthorized
	}
	return ops, uid, nil
}

func (s *Server) listRows(w http.ResponseWriter, r *http.Request) {
	ops, uid, err := s.resolve(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cols, filters, err := s.parseQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := ops.list(r.Context(), uid, filters)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := project(rows, cols)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) insertRows(w http.ResponseWriter, r *http.Request) {
	ops, uid, err := s.resolve(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cols, _, err := s.parseQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := ops.insert(r.Context(), uid, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !wantsRepresentation(r) {
		w.WriteHeader(http.StatusCreated)
		return
	}
	out, err := project(rows, cols)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) updateRows(w http.ResponseWriter, r *http.Request) {
	ops, uid, err := s.resolve(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cols, filters, err := s.parseQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var ids map[int64]bool
	if wantsRepresentation(r) && len(filters) > 0 {
		// remember the matched rows; the patch may change filtered columns
		before, err := ops.list(r.Context(), uid, filters)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ids = rowIDs(before)
	}

	n, err := ops.update(r.Context(), uid, body, filters)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setCount(w, n)
	if ids == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	after, err := ops.list(r.Context(), uid, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	kept := make([]any, 0, len(ids))
	for _, row := range after {
		if ids[rowID(row)] {
			kept = append(kept, row)
		}
	}
	out, err := project(kept, cols)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteRows(w http.ResponseWriter, r *http.Request) {
	ops, uid, err := s.resolve(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cols, filters, err := s.parseQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var before []any
	if wantsRepresentation(r) && len(filters) > 0 {
		if before, err = ops.list(r.Context(), uid, filters); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	n, err := ops.delete(r.Context(), uid, filters)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	setCount(w, n)
	if before == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	out, err := project(before, cols)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// parseQuery splits the query into a projection and eq filters.
func (s *Server) parseQuery(r *http.Request) ([]string, []service.RawFilter, error) {
	table := r.PathValue("table")
	var cols []string
	var filters []service.RawFilter
	for key, vals := range r.URL.Query() {
		if key == selectParam {
			cols = parseSelect(vals[len(vals)-1])
			continue
		}
		for _, v := range vals {
			value, ok := strings.CutPrefix(v, filterOperator)
			if !ok {
				return nil, nil, fmt.Errorf("%w: %s: only eq filters are supported", errs.ErrValidation, key)
			}
			filters = append(filters, service.RawFilter{Column: key, Value: value})
		}
	}
	if len(cols) > 0 && s.schema != nil {
		if err := s.schema.Columns(table, cols); err != nil {
			return nil, nil, err
		}
	}
	return cols, filters, nil
}

func parseSelect(raw string) []string {
	if raw == "" || raw == "*" {
		return nil
	}
	parts := strings.Split(raw, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cols = append(cols, p)
		}
	}
	return cols
}

func wantsRepresentation(r *http.Request) bool {
	for _, v := range r.Header.Values("Prefer") {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == preferRepresentation {
				return true
			}
		}
	}
	return false
}

func setCount(w http.ResponseWriter, n int64) {
	w.Header().Set("Content-Range", fmt.Sprintf("*/%d", n))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errs.ErrValidation, err)
	}
	return b, nil
}

// decodeRows accepts a JSON array of rows or a single row object.
func decodeRows[R any](body []byte) ([]R, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var one R
		if err := decodeStrict(body, &one); err != nil {
			return nil, err
		}
		return []R{one}, nil
	}
	var rows []R
	if err := decodeStrict(body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// decodeStrict rejects unknown columns.
func decodeStrict(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return nil
}

// project keeps only cols of every row; nil cols keeps rows whole.
func project(rows []any, cols []string) (any, error) {
	if len(cols) == 0 {
		return rows, nil
	}
	out := make([]map[string]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		var full map[string]json.RawMessage
		if err := json.Unmarshal(b, &full); err != nil {
			return nil, err
		}
		p := make(map[string]json.RawMessage, len(cols))
		for _, c := range cols {
			if v, ok := full[c]; ok {
				p[c] = v
			} else {
				p[c] = json.RawMessage("null")
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func rowID(row any) int64 {
	switch r := row.(type) {
	case convert.TopicRow:
		return r.ID
	case convert.SubtopicRow:
		return r.ID
	default:
		return 0
	}
}

func rowIDs(rows []any) map[int64]bool {
	ids := make(map[int64]bool, len(rows))
	for _, r := range rows {
		ids[rowID(r)] = true
	}
	return ids
}
