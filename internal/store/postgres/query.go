package postgres

import (
	"strconv"
	"strings"

	"github.com/okeymeta/probalyze-sub000/internal/domain"
)

// listQuery assembles a filtered, paginated SELECT. Every "?" in a condition
// is bound to that condition's single argument.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(base string) *listQuery {
	q := &listQuery{}
	q.sb.WriteString(base)
	q.sb.WriteString(" WHERE TRUE")
	return q
}

func (q *listQuery) and(cond string, arg any) *listQuery {
	q.args = append(q.args, arg)
	q.sb.WriteString(" AND ")
	q.sb.WriteString(strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(q.args))))
	return q
}

// window applies the time range and pagination of opts, newest first.
func (q *listQuery) window(opts domain.ListOpts) *listQuery {
	if opts.Since != nil {
		q.and("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		q.and("created_at <= ?", *opts.Until)
	}
	q.sb.WriteString(" ORDER BY created_at DESC")
	if opts.Limit > 0 {
		q.args = append(q.args, opts.Limit)
		q.sb.WriteString(" LIMIT $" + strconv.Itoa(len(q.args)))
	}
	if opts.Offset > 0 {
		q.args = append(q.args, opts.Offset)
		q.sb.WriteString(" OFFSET $" + strconv.Itoa(len(q.args)))
	}
	return q
}

func (q *listQuery) String() string { return q.sb.String() }
