package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"smart-campus-maintenance/maintenance/internal/engine"
)

type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// locationJoin resolves the area and asset type of a (kind, id) pair held in
// columns <alias>.location_kind and <alias>.location_id.
func locationJoin(alias string) string {
	return fmt.Sprintf(`
		LEFT JOIN assets la ON %[1]s.location_kind = 'asset' AND la.asset_id = %[1]s.location_id
		LEFT JOIN rooms lr ON %[1]s.location_kind = 'room' AND lr.room_id = %[1]s.location_id
		LEFT JOIN classrooms lc ON %[1]s.location_kind = 'classroom' AND lc.classroom_id = %[1]s.location_id`, alias)
}

const (
	locationAreaExpr  = `COALESCE(la.building, lr.block, lc.building, '')`
	locationAssetExpr = `COALESCE(la.asset_type, '')`
)

// args accumulates positional parameters for a dynamically built WHERE clause.
type args struct {
	values []any
	where  []string
}

func (a *args) add(clause string, v any) {
	a.values = append(a.values, v)
	a.where = append(a.where, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(a.values))))
}

func (a *args) raw(clause string) {
	a.where = append(a.where, clause)
}

func (a *args) clause() string {
	if len(a.where) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(a.where, " AND ")
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.ErrNotFound
	}
	return err
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
