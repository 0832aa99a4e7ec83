package baas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query builds a PostgREST request against one table. Builder methods mutate and return q.
type Query struct {
	c       *Client
	table   string
	params  url.Values
	single  bool
	count   bool
	hasFrom bool
	from    int
	to      int
}

// From starts a query on table.
func (c *Client) From(table string) *Query {
	return &Query{c: c, table: table, params: url.Values{}}
}

// Select sets the column list ("*" when never called).
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq filters rows where column equals value.
func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	return q
}

// Search matches rows where any of columns contains term, case-insensitively.
// Characters that are structural in PostgREST filters are dropped from term.
func (q *Query) Search(term string, columns ...string) *Query {
	term = strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*', '%':
			return -1
		}
		return r
	}, strings.TrimSpace(term))
	if term == "" || len(columns) == 0 {
		return q
	}
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s.ilike.*%s*", col, term)
	}
	q.params.Set("or", "("+strings.Join(parts, ",")+")")
	return q
}

// Order sorts by column.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.params.Set("order", column+"."+dir)
	return q
}

// Limit caps the number of rows.
func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Range selects rows from..to inclusive (zero-based).
func (q *Query) Range(from, to int) *Query {
	q.hasFrom, q.from, q.to = true, from, to
	return q
}

// CountExact asks for the total row count matching the filters.
func (q *Query) CountExact() *Query {
	q.count = true
	return q
}

// Single expects exactly one row and decodes it as an object.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

func (q *Query) path() string {
	return "/rest/v1/" + url.PathEscape(q.table)
}

func (q *Query) readHeader() http.Header {
	h := http.Header{}
	var prefer []string
	if q.count {
		prefer = append(prefer, "count=exact")
	}
	if len(prefer) > 0 {
		h.Set("Prefer", strings.Join(prefer, ","))
	}
	if q.hasFrom {
		h.Set("Range-Unit", "items")
		h.Set("Range", fmt.Sprintf("%d-%d", q.from, q.to))
	}
	if q.single {
		h.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return h
}

func (q *Query) writeHeader() http.Header {
	h := http.Header{}
	h.Set("Prefer", "return=representation")
	if q.single {
		h.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return h
}

// Execute runs a read and decodes rows into out. count is the exact total when CountExact was set, else -1.
func (q *Query) Execute(ctx context.Context, out interface{}) (count int, err error) {
	params := cloneValues(q.params)
	if params.Get("select") == "" {
		params.Set("select", "*")
	}
	hdr, err := q.c.do(ctx, request{
		method: http.MethodGet,
		path:   q.path(),
		query:  params,
		header: q.readHeader(),
	}, out)
	if err != nil {
		return -1, err
	}
	if !q.count {
		return -1, nil
	}
	return parseContentRangeTotal(hdr.Get("Content-Range")), nil
}

// Insert inserts rows (a struct, map or slice) and decodes the stored representation into out.
func (q *Query) Insert(ctx context.Context, rows interface{}, out interface{}) error {
	params := url.Values{"select": {"*"}}
	_, err := q.c.do(ctx, request{
		method: http.MethodPost,
		path:   q.path(),
		query:  params,
		body:   rows,
		header: q.writeHeader(),
	}, out)
	return err
}

// Update patches rows matching the filters and decodes the updated representation into out.
func (q *Query) Update(ctx context.Context, patch interface{}, out interface{}) error {
	if len(q.params) == 0 {
		return fmt.Errorf("baas: update on %s without a filter", q.table)
	}
	params := cloneValues(q.params)
	params.Set("select", "*")
	_, err := q.c.do(ctx, request{
		method: http.MethodPatch,
		path:   q.path(),
		query:  params,
		body:   patch,
		header: q.writeHeader(),
	}, out)
	return err
}

// Delete removes rows matching the filters.
func (q *Query) Delete(ctx context.Context) error {
	if len(q.params) == 0 {
		return fmt.Errorf("baas: delete on %s without a filter", q.table)
	}
	_, err := q.c.do(ctx, request{
		method: http.MethodDelete,
		path:   q.path(),
		query:  cloneValues(q.params),
	}, nil)
	return err
}

// RPC calls a database function and decodes its result into out.
func (c *Client) RPC(ctx context.Context, fn string, args interface{}, out interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/" + url.PathEscape(fn),
		body:   args,
	}, out)
	return err
}

// parseContentRangeTotal reads the total from "0-49/123" or "*/0". Returns -1 when unknown.
func parseContentRangeTotal(v string) int {
	i := strings.LastIndexByte(v, '/')
	if i < 0 {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v[i+1:]))
	if err != nil {
		return -1
	}
	return n
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
