// Package record provides table-scoped CRUD without per-entity boilerplate.
// Every domain entity that needs first-class persistence binds a Service to
// its table; query text is assembled from typed filters validated against a
// per-table column allow-list, so callers get the "any subset of fields"
// flexibility without arbitrary-column injection.
package record

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"egovportal.org/internal/apperr"
	"egovportal.org/internal/ids"
)

// Store is the slice of the connection manager the record layer needs.
type Store interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Table registers an entity table: its column allow-list and defaults.
type Table struct {
	Name         string
	Columns      []string
	DefaultOrder string
	// GeneratedID assigns a ULID on create when the caller supplies none.
	GeneratedID bool
}

// Service is a generic record accessor bound to one table.
type Service struct {
	store Store
	table Table
	cols  map[string]struct{}
}

// New binds a Service to a table definition.
func New(store Store, table Table) *Service {
	if table.DefaultOrder == "" {
		table.DefaultOrder = "created_at"
	}
	cols := make(map[string]struct{}, len(table.Columns))
	for _, c := range table.Columns {
		cols[c] = struct{}{}
	}
	return &Service{store: store, table: table, cols: cols}
}

// TableName returns the bound table's name.
func (s *Service) TableName() string { return s.table.Name }

func (s *Service) allowed(column string) bool {
	_, ok := s.cols[column]
	return ok
}

// ListOptions shapes a FindAll query. Zero values fall back to the table's
// defaults: order by DefaultOrder descending, limit 10, all columns.
type ListOptions struct {
	Filters Filters
	OrderBy string
	Order   string // "ASC" or "DESC"
	Limit   int
	Offset  int
	Fields  []string
}

func (s *Service) selectList(fields []string) (string, error) {
	if len(fields) == 0 {
		return "*", nil
	}
	for _, f := range fields {
		if !s.allowed(f) {
			return "", apperr.BadRequest(fmt.Sprintf("unknown column %q for table %s", f, s.table.Name))
		}
	}
	return strings.Join(fields, ", "), nil
}

func (s *Service) orderClause(orderBy, order string) (string, error) {
	if orderBy == "" {
		orderBy = s.table.DefaultOrder
	}
	if !s.allowed(orderBy) {
		return "", apperr.BadRequest(fmt.Sprintf("unknown column %q for table %s", orderBy, s.table.Name))
	}
	switch strings.ToUpper(order) {
	case "ASC":
		order = "asc"
	case "", "DESC":
		order = "desc"
	default:
		return "", apperr.BadRequest("order must be ASC or DESC")
	}
	return fmt.Sprintf(" order by %s %s", orderBy, order), nil
}

// FindAll returns the matching records, possibly none; zero matches are not
// an error.
func (s *Service) FindAll(ctx context.Context, opts ListOptions) ([]Row, error) {
	fields, err := s.selectList(opts.Fields)
	if err != nil {
		return nil, err
	}
	where, params, err := s.buildWhere(opts.Filters, 1)
	if err != nil {
		return nil, err
	}
	orderBy, err := s.orderClause(opts.OrderBy, opts.Order)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	var b strings.Builder
	fmt.Fprintf(&b, "select %s from %s%s%s", fields, s.table.Name, where, orderBy)
	fmt.Fprintf(&b, " limit $%d offset $%d", len(params)+1, len(params)+2)
	params = append(params, limit, opts.Offset)

	rows, err := s.store.Query(ctx, b.String(), params...)
	if err != nil {
		return nil, apperr.Classify(err, "fetch records failed")
	}
	defer rows.Close()

	out, err := ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "fetch records failed")
	}
	return out, nil
}

// FindByID fetches one record by primary key, failing with NotFound when no
// row matches.
func (s *Service) FindByID(ctx context.Context, id string, fields ...string) (Row, error) {
	list, err := s.selectList(fields)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("select %s from %s where id = $1", list, s.table.Name)
	rows, err := s.store.Query(ctx, query, id)
	if err != nil {
		return nil, apperr.Classify(err, "fetch record failed")
	}
	defer rows.Close()

	out, err := ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "fetch record failed")
	}
	if len(out) == 0 {
		return nil, apperr.NotFound(s.table.Name + " not found")
	}
	return out[0], nil
}

// FindOne fetches at most one record. An empty filter set is rejected to
// prevent an unconstrained single-row fetch; zero matches return nil, nil,
// since "does this exist" legitimately answers no.
func (s *Service) FindOne(ctx context.Context, filters Filters) (Row, error) {
	if len(filters) == 0 {
		return nil, apperr.BadRequest("no search criteria provided")
	}
	where, params, err := s.buildWhere(filters, 1)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("select * from %s%s limit 1", s.table.Name, where)
	rows, err := s.store.Query(ctx, query, params...)
	if err != nil {
		return nil, apperr.Classify(err, "fetch record failed")
	}
	defer rows.Close()

	out, err := ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "fetch record failed")
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// Create inserts the defined fields of data, letting column defaults apply
// to everything absent, and returns the inserted record. Columns are walked
// in table-registration order so the generated SQL is deterministic.
func (s *Service) Create(ctx context.Context, data Row) (Row, error) {
	if s.table.GeneratedID {
		if _, ok := data["id"]; !ok {
			data["id"] = ids.New()
		}
	}

	var (
		columns      []string
		placeholders []string
		params       []any
	)
	for _, col := range s.table.Columns {
		v, ok := data[col]
		if !ok {
			continue
		}
		columns = append(columns, col)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(params)+1))
		params = append(params, v)
	}
	for col := range data {
		if !s.allowed(col) {
			return nil, apperr.BadRequest(fmt.Sprintf("unknown column %q for table %s", col, s.table.Name))
		}
	}
	if len(columns) == 0 {
		return nil, apperr.BadRequest("no fields to insert")
	}

	query := fmt.Sprintf("insert into %s (%s) values (%s) returning *",
		s.table.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	rows, err := s.store.Query(ctx, query, params...)
	if err != nil {
		return nil, apperr.Classify(err, "create record failed")
	}
	defer rows.Close()

	out, err := ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "create record failed")
	}
	if len(out) == 0 {
		return nil, apperr.Database("create record failed")
	}
	return out[0], nil
}

// Update assigns the defined fields of data and stamps updated_at, failing
// with BadRequest when data holds nothing definable and NotFound when the id
// does not exist.
func (s *Service) Update(ctx context.Context, id string, data Row) (Row, error) {
	var (
		assignments []string
		params      []any
	)
	for _, col := range s.table.Columns {
		if col == "id" {
			continue
		}
		v, ok := data[col]
		if !ok {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = $%d", col, len(params)+1))
		params = append(params, v)
	}
	for col := range data {
		if col == "id" {
			continue
		}
		if !s.allowed(col) {
			return nil, apperr.BadRequest(fmt.Sprintf("unknown column %q for table %s", col, s.table.Name))
		}
	}
	if len(assignments) == 0 {
		return nil, apperr.BadRequest("no fields to update")
	}

	params = append(params, id)
	query := fmt.Sprintf("update %s set %s, updated_at = now() where id = $%d returning *",
		s.table.Name, strings.Join(assignments, ", "), len(params))

	rows, err := s.store.Query(ctx, query, params...)
	if err != nil {
		return nil, apperr.Classify(err, "update record failed")
	}
	defer rows.Close()

	out, err := ScanRows(rows)
	if err != nil {
		return nil, apperr.Classify(err, "update record failed")
	}
	if len(out) == 0 {
		return nil, apperr.NotFound(s.table.Name + " not found")
	}
	return out[0], nil
}

// Delete removes one record and returns it, failing with NotFound when
// absent and Conflict when a dependent row still references it.
func (s *Service) Delete(ctx context.Context, id string) (Row, error) {
	query := fmt.Sprintf("delete from %s where id = $1 returning *", s.table.Name)
	rows, err := s.store.Query(ctx, query, id)
	if err != nil {
		return nil, apperr.ClassifyDelete(err, "delete record failed")
	}
	defer rows.Close()

	out, err := ScanRows(rows)
	if err != nil {
		return nil, apperr.ClassifyDelete(err, "delete record failed")
	}
	if len(out) == 0 {
		return nil, apperr.NotFound(s.table.Name + " not found")
	}
	return out[0], nil
}

// Count returns the number of records matching the filters.
func (s *Service) Count(ctx context.Context, filters Filters) (int, error) {
	where, params, err := s.buildWhere(filters, 1)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("select count(*) from %s%s", s.table.Name, where)
	rows, err := s.store.Query(ctx, query, params...)
	if err != nil {
		return 0, apperr.Classify(err, "count records failed")
	}
	defer rows.Close()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, apperr.Classify(err, "count records failed")
		}
	}
	return count, rows.Err()
}

// Exists reports whether any record matches the filters.
func (s *Service) Exists(ctx context.Context, filters Filters) (bool, error) {
	count, err := s.Count(ctx, filters)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PageParams shapes a Paginate call. Pages are 1-indexed; this layer does
// not validate page <= 0, defensive validation belongs to the caller.
type PageParams struct {
	Page    int
	Limit   int
	Filters Filters
	OrderBy string
	Order   string
}

// Pagination is the envelope accompanying a page of data.
type Pagination struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// Page is one page of records plus its pagination envelope.
type Page struct {
	Data       []Row      `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Paginate runs Count and FindAll against the same filter set and wraps the
// result in a pagination envelope.
func (s *Service) Paginate(ctx context.Context, p PageParams) (*Page, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = 10
	}
	offset := (p.Page - 1) * p.Limit

	total, err := s.Count(ctx, p.Filters)
	if err != nil {
		return nil, err
	}
	data, err := s.FindAll(ctx, ListOptions{
		Filters: p.Filters,
		OrderBy: p.OrderBy,
		Order:   p.Order,
		Limit:   p.Limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, err
	}

	pages := (total + p.Limit - 1) / p.Limit
	return &Page{
		Data: data,
		Pagination: Pagination{
			Total:   total,
			Page:    p.Page,
			Limit:   p.Limit,
			Pages:   pages,
			HasNext: p.Page < pages,
			HasPrev: p.Page > 1,
		},
	}, nil
}

// Transaction delegates to the connection manager so composed entity
// operations get atomicity when they need it.
func (s *Service) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.store.Transaction(ctx, fn)
}
