package element

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/devicelab-dev/gherkin-runner/pkg/core"
	"github.com/devicelab-dev/gherkin-runner/pkg/page"
	"github.com/devicelab-dev/gherkin-runner/pkg/webdriver"
)

// TableData is a parsed snapshot of a table.
type TableData struct {
	Headers []string
	Rows    [][]string

	// headerInBody is set when headers were taken from the first body row.
	headerInBody bool
}

// Table reads an element as a table. Content is fetched in a single
// round trip and parsed locally; cell clicks resolve live nodes.
type Table struct {
	el   *Element
	spec page.TableSpec
}

// Table returns a table view of def. Elements without a table spec are
// read as HTML tables.
func (f *Finder) Table(def *page.Element) *Table {
	spec := page.TableSpec{Kind: page.TableHTML}
	if def.Table != nil {
		spec = *def.Table
	}
	if spec.Kind == page.TableGrid {
		if spec.Header == "" {
			spec.Header = page.DefaultGridHeader
		}
		if spec.Row == "" {
			spec.Row = page.DefaultGridRow
		}
		if spec.Cell == "" {
			spec.Cell = page.DefaultGridCell
		}
	}
	return &Table{el: f.Element(def), spec: spec}
}

// Read fetches and parses the table.
func (t *Table) Read(ctx context.Context) (*TableData, error) {
	markup, err := t.el.OuterHTML(ctx)
	if err != nil {
		return nil, err
	}
	return ParseTable(markup, t.spec)
}

// ParseTable parses table markup according to spec.
func ParseTable(markup string, spec page.TableSpec) (*TableData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse table markup: %w", err)
	}
	if spec.Kind == page.TableGrid {
		return parseGrid(doc.Selection, spec), nil
	}
	return parseHTMLTable(doc.Selection), nil
}

func parseHTMLTable(root *goquery.Selection) *TableData {
	table := root.Find("table").First()
	if table.Length() == 0 {
		table = root
	}
	data := &TableData{}

	header := table.Find("thead tr").First()
	if header.Length() == 0 {
		// A leading row made only of th cells is a header.
		first := table.Find("tr").First()
		if first.Find("th").Length() > 0 && first.Find("td").Length() == 0 {
			header = first
		}
	}
	header.Find("th, td").Each(func(_ int, c *goquery.Selection) {
		data.Headers = append(data.Headers, cellText(c))
	})

	table.Find("tr").Each(func(_ int, r *goquery.Selection) {
		if r.Find("td").Length() == 0 || r.Parent().Is("thead") {
			return
		}
		var row []string
		r.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
			row = append(row, cellText(c))
		})
		data.Rows = append(data.Rows, row)
	})

	if len(data.Headers) == 0 && len(data.Rows) > 0 {
		data.Headers = data.Rows[0]
		data.Rows = data.Rows[1:]
		data.headerInBody = true
	}
	return data
}

func parseGrid(root *goquery.Selection, spec page.TableSpec) *TableData {
	data := &TableData{}
	root.Find(spec.Header).Each(func(_ int, c *goquery.Selection) {
		data.Headers = append(data.Headers, cellText(c))
	})
	root.Find(spec.Row).Each(func(_ int, r *goquery.Selection) {
		cells := r.Find(spec.Cell)
		if cells.Length() == 0 {
			return
		}
		var row []string
		cells.Each(func(_ int, c *goquery.Selection) {
			row = append(row, cellText(c))
		})
		data.Rows = append(data.Rows, row)
	})
	return data
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// ColumnIndex returns the index of the named column, matched
// case-insensitively, or -1.
func (d *TableData) ColumnIndex(column string) int {
	want := strings.ToLower(strings.TrimSpace(column))
	for i, h := range d.Headers {
		if strings.ToLower(h) == want {
			return i
		}
	}
	return -1
}

// RowCount returns the number of data rows.
func (d *TableData) RowCount() int {
	return len(d.Rows)
}

// Records returns the rows as column to value maps.
func (d *TableData) Records() []map[string]string {
	out := make([]map[string]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		rec := make(map[string]string, len(d.Headers))
		for i, h := range d.Headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// Column returns every value of the named column.
func (d *TableData) Column(column string) ([]string, error) {
	idx, err := d.column(column)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, "")
		}
	}
	return values, nil
}

// Cell returns the value at a 1-based row and named column.
func (d *TableData) Cell(row int, column string) (string, error) {
	idx, err := d.column(column)
	if err != nil {
		return "", err
	}
	if row < 1 || row > len(d.Rows) {
		return "", core.ErrTableMismatch.
			WithMessagef("row %d out of range (table has %d rows)", row, len(d.Rows))
	}
	cells := d.Rows[row-1]
	if idx >= len(cells) {
		return "", nil
	}
	return cells[idx], nil
}

// FindRow returns the 1-based index of the first row whose column equals
// value, or an error.
func (d *TableData) FindRow(column, value string) (int, error) {
	values, err := d.Column(column)
	if err != nil {
		return 0, err
	}
	want := strings.TrimSpace(value)
	for i, v := range values {
		if v == want {
			return i + 1, nil
		}
	}
	return 0, core.ErrTableMismatch.
		WithMessagef("no row where %q is %q", column, value).
		WithDetails(map[string]interface{}{"column": column, "value": value})
}

// ContainsRows checks that every expected record appears in the table.
// Each expected record names a subset of columns; a row matches when all
// of them are equal. Distinct expected records must match distinct rows.
func (d *TableData) ContainsRows(expected []map[string]string) error {
	for _, rec := range expected {
		for col := range rec {
			if d.ColumnIndex(col) < 0 {
				return d.unknownColumn(col)
			}
		}
	}
	candidates := make([][]int, len(expected))
	for i, rec := range expected {
		for r, row := range d.Rows {
			if d.rowMatches(row, rec) {
				candidates[i] = append(candidates[i], r)
			}
		}
	}

	// owner[r] is the expected record assigned to row r, or -1.
	owner := make([]int, len(d.Rows))
	for r := range owner {
		owner[r] = -1
	}
	var assign func(i int, seen []bool) bool
	assign = func(i int, seen []bool) bool {
		for _, r := range candidates[i] {
			if seen[r] {
				continue
			}
			seen[r] = true
			if owner[r] < 0 || assign(owner[r], seen) {
				owner[r] = i
				return true
			}
		}
		return false
	}

	var missing []string
	for i, rec := range expected {
		if !assign(i, make([]bool, len(d.Rows))) {
			missing = append(missing, formatRecord(rec))
		}
	}
	if len(missing) > 0 {
		return core.ErrTableMismatch.
			WithMessagef("table is missing %d expected row(s): %s", len(missing), strings.Join(missing, "; ")).
			WithDetails(map[string]interface{}{"missing": missing, "rows": len(d.Rows)})
	}
	return nil
}

func (d *TableData) rowMatches(row []string, rec map[string]string) bool {
	for col, want := range rec {
		idx := d.ColumnIndex(col)
		got := ""
		if idx < len(row) {
			got = row[idx]
		}
		if got != strings.TrimSpace(want) {
			return false
		}
	}
	return true
}

func (d *TableData) column(column string) (int, error) {
	idx := d.ColumnIndex(column)
	if idx < 0 {
		return 0, d.unknownColumn(column)
	}
	return idx, nil
}

func (d *TableData) unknownColumn(column string) error {
	return core.ErrTableMismatch.
		WithMessagef("column %q not found (columns: %s)", column, strings.Join(d.Headers, ", ")).
		WithDetails(map[string]interface{}{"column": column, "headers": d.Headers})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatRecord(rec map[string]string) string {
	keys := sortedKeys(rec)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, rec[k]))
	}
	return strings.Join(parts, ", ")
}

// Headers returns the column names.
func (t *Table) Headers(ctx context.Context) ([]string, error) {
	d, err := t.Read(ctx)
	if err != nil {
		return nil, err
	}
	return d.Headers, nil
}

// RowCount returns the number of data rows.
func (t *Table) RowCount(ctx context.Context) (int, error) {
	d, err := t.Read(ctx)
	if err != nil {
		return 0, err
	}
	return d.RowCount(), nil
}

// Rows returns the rows as column to value maps.
func (t *Table) Rows(ctx context.Context) ([]map[string]string, error) {
	d, err := t.Read(ctx)
	if err != nil {
		return nil, err
	}
	return d.Records(), nil
}

// Column returns every value of the named column.
func (t *Table) Column(ctx context.Context, column string) ([]string, error) {
	d, err := t.Read(ctx)
	if err != nil {
		return nil, err
	}
	return d.Column(column)
}

// Cell returns the value at a 1-based row and named column.
func (t *Table) Cell(ctx context.Context, row int, column string) (string, error) {
	d, err := t.Read(ctx)
	if err != nil {
		return "", err
	}
	return d.Cell(row, column)
}

// FindRow returns the 1-based index of the first row whose column equals value.
func (t *Table) FindRow(ctx context.Context, column, value string) (int, error) {
	d, err := t.Read(ctx)
	if err != nil {
		return 0, err
	}
	return d.FindRow(column, value)
}

// ClickCell clicks the live cell at a 1-based row and named column.
func (t *Table) ClickCell(ctx context.Context, row int, column string) error {
	d, err := t.Read(ctx)
	if err != nil {
		return err
	}
	if _, err := d.Cell(row, column); err != nil {
		return err
	}
	idx := d.ColumnIndex(column)
	bodyRow := row - 1
	if d.headerInBody {
		bodyRow++
	}

	rowUsing, rowSel, cellUsing, cellSel := webdriver.ByXPath, ".//tr[td][not(parent::thead)]", webdriver.ByXPath, "./th | ./td"
	if t.spec.Kind == page.TableGrid {
		rowUsing, rowSel, cellUsing, cellSel = webdriver.ByCSS, t.spec.Row, webdriver.ByCSS, t.spec.Cell
	}

	f := t.el.f
	return t.el.act(ctx, Present(), func(loc *Located) error {
		rows, err := f.remote.FindElementsFrom(ctx, loc.ID, rowUsing, rowSel)
		if err != nil {
			return err
		}
		if t.spec.Kind == page.TableGrid {
			rows, err = t.gridDataRows(ctx, rows)
			if err != nil {
				return err
			}
		}
		if bodyRow >= len(rows) {
			return core.ErrTableMismatch.WithMessagef("row %d no longer present in %s", row, t.el.def.Ref())
		}
		cells, err := f.remote.FindElementsFrom(ctx, rows[bodyRow], cellUsing, cellSel)
		if err != nil {
			return err
		}
		if idx >= len(cells) {
			return core.ErrTableMismatch.WithMessagef("row %d of %s has no %q cell", row, t.el.def.Ref(), column)
		}
		if err := f.remote.Click(ctx, cells[idx]); err != nil {
			if !webdriver.IsNotInteractable(err) || !f.web() {
				return err
			}
			_, err = f.remote.ExecuteScript(ctx, scriptClick, cells[idx])
			return err
		}
		return nil
	})
}

// gridDataRows drops rows without data cells, such as header rows.
func (t *Table) gridDataRows(ctx context.Context, rows []webdriver.Element) ([]webdriver.Element, error) {
	f := t.el.f
	out := rows[:0:0]
	for _, r := range rows {
		cells, err := f.remote.FindElementsFrom(ctx, r, webdriver.ByCSS, t.spec.Cell)
		if err != nil && !webdriver.IsNoSuchElement(err) {
			return nil, err
		}
		if len(cells) > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// ClickCellWhere clicks the column cell of the first row whose key column
// equals value.
func (t *Table) ClickCellWhere(ctx context.Context, column, key, value string) error {
	row, err := t.FindRow(ctx, key, value)
	if err != nil {
		return err
	}
	return t.ClickCell(ctx, row, column)
}
