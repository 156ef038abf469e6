// Package render turns query results into presentable message content.
package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/capitalize-ai/querychat/internal/model"
)

var tableTemplate = template.Must(template.New("table").
	Funcs(template.FuncMap{"cell": FormatCell}).
	Parse(`<div class="table-info"><small>{{len .Rows}} rows returned</small></div>` +
		`<div class="overflow-auto"><table>` +
		`<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>` +
		`<tbody>{{range .Rows}}<tr>{{range .}}<td>{{cell .}}</td>{{end}}</tr>{{end}}</tbody>` +
		`</table></div>`))

// Table renders a tabular result as escaped HTML markup. A nil result or one
// without rows renders as NoDataNotice.
func Table(result *model.TableResult) (string, error) {
	if result == nil || len(result.Rows) == 0 {
		return NoDataNotice, nil
	}

	var b strings.Builder
	if err := tableTemplate.Execute(&b, result); err != nil {
		return "", fmt.Errorf("failed to render table: %w", err)
	}
	return b.String(), nil
}

// FormatCell converts a decoded JSON cell to display text. Null cells
// render as the empty string.
func FormatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case json.Number:
		return c.String()
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(c), 'f', -1, 32)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}
