package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"imagescan/internal/conf"
	"imagescan/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrParamCount is returned when a query's placeholders and arguments differ
// in number. Such a query is never sent.
var ErrParamCount = errors.New("data: placeholder count does not match parameters")

// Row is one result row keyed by column name. SQL NULL reads as "".
type Row map[string]string

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QueryStore runs "?" parameterised queries one at a time.
type QueryStore struct {
	mu      sync.Mutex
	db      querier
	timeout time.Duration
	log     *log.Helper
}

// NewQueryStore creates a new QueryStore over the data pool.
func NewQueryStore(data *Data, c *conf.Data, logger log.Logger) *QueryStore {
	return newQueryStore(data.Pool, queryTimeout(c), logger)
}

func newQueryStore(db querier, timeout time.Duration, logger log.Logger) *QueryStore {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &QueryStore{
		db:      db,
		timeout: timeout,
		log:     log.NewHelper(logger),
	}
}

// Execute substitutes args for the "?" placeholders in query, runs it and
// returns every row. Failures are logged with the query and returned.
func (s *QueryStore) Execute(ctx context.Context, query string, args ...any) ([]Row, error) {
	sql, n := rewritePlaceholders(query)
	if n != len(args) {
		err := fmt.Errorf("%w: %d placeholders, %d parameters", ErrParamCount, n, len(args))
		s.log.Errorf("query %q: %v", query, err)
		return nil, err
	}

	ctx, span := otel.Tracer("imagescan/data").Start(ctx, "QueryStore.Execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.statement", query)))
	defer span.End()

	start := time.Now()
	s.mu.Lock()
	rows, err := s.execute(ctx, sql, args)
	s.mu.Unlock()
	metrics.QueryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Errorf("query %q: %v", query, err)
		return nil, err
	}
	return rows, nil
}

func (s *QueryStore) execute(ctx context.Context, sql string, args []any) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var result []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			if i < len(values) {
				row[f.Name] = toString(values[i])
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// rewritePlaceholders turns "?" into "$1", "$2"... outside quoted text and
// reports how many it replaced.
func rewritePlaceholders(query string) (string, int) {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), n
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}
