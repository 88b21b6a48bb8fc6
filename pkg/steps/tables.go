package steps

import (
	"context"
	"errors"
	"strings"

	"github.com/cucumber/godog"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/element"
)

func (w *World) table(ctx context.Context, ref string) (*element.Table, error) {
	def, err := w.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := w.Finder(ctx)
	if err != nil {
		return nil, err
	}
	return f.Table(def), nil
}

// checkTable reads the table until check passes or the element timeout
// elapses. Table mismatches are retried; other errors end the wait.
func (w *World) checkTable(ctx context.Context, ref string, check func(*element.TableData) error) error {
	t, err := w.table(ctx, ref)
	if err != nil {
		return err
	}
	return w.eventually(ctx, func() error {
		data, err := t.Read(ctx)
		if err != nil {
			return err
		}
		return retryMismatch(check(data))
	})
}

func retryMismatch(err error) error {
	if errors.Is(err, core.ErrTableMismatch) {
		return retryable(err)
	}
	return err
}

// tableShouldContain checks that every data row of the step table appears
// in the page table. The first step table row names the columns.
func (w *World) tableShouldContain(ctx context.Context, ref string, tbl *godog.Table) error {
	expected, err := w.records(ctx, tbl)
	if err != nil {
		return err
	}
	return w.checkTable(ctx, ref, func(d *element.TableData) error {
		return d.ContainsRows(expected)
	})
}

func (w *World) records(ctx context.Context, tbl *godog.Table) ([]map[string]string, error) {
	if tbl == nil || len(tbl.Rows) == 0 {
		return nil, core.ErrMissingRequired.WithMessage("step table is empty")
	}
	var headers []string
	for _, c := range tbl.Rows[0].Cells {
		headers = append(headers, strings.TrimSpace(c.Value))
	}
	out := make([]map[string]string, 0, len(tbl.Rows)-1)
	for _, row := range tbl.Rows[1:] {
		rec := make(map[string]string, len(headers))
		for i, c := range row.Cells {
			if i >= len(headers) {
				break
			}
			v, err := w.Expand(ctx, c.Value)
			if err != nil {
				return nil, err
			}
			rec[headers[i]] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

func (w *World) tableShouldHaveRows(ctx context.Context, ref string, n int) error {
	return w.checkTable(ctx, ref, func(d *element.TableData) error {
		if got := d.RowCount(); got != n {
			return core.ErrTableMismatch.
				WithMessagef("table %s has %d rows, expected %d", ref, got, n).
				WithDetails(map[string]interface{}{"expected": n, "actual": got})
		}
		return nil
	})
}

func (w *World) columnShouldContain(ctx context.Context, column, ref, raw string) error {
	want, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	return w.checkTable(ctx, ref, func(d *element.TableData) error {
		_, err := d.FindRow(column, want)
		return err
	})
}

func (w *World) clickCell(ctx context.Context, column string, row int, ref string) error {
	t, err := w.table(ctx, ref)
	if err != nil {
		return err
	}
	return w.eventually(ctx, func() error {
		return retryMismatch(t.ClickCell(ctx, row, column))
	})
}

func (w *World) clickCellWhere(ctx context.Context, column, ref, key, raw string) error {
	value, err := w.Expand(ctx, raw)
	if err != nil {
		return err
	}
	t, err := w.table(ctx, ref)
	if err != nil {
		return err
	}
	return w.eventually(ctx, func() error {
		return retryMismatch(t.ClickCellWhere(ctx, column, key, value))
	})
}
