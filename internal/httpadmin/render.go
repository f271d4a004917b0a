package httpadmin

import (
	"fmt"
	"html"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/koltyakov/tunnelpool/internal/pool"
)

// RenderStatus writes a small HTML table of snapshots with humanized
// age/weight formatting.
func RenderStatus(w io.Writer, snapshots []pool.Snapshot) {
	fmt.Fprintln(w, "<table>")
	fmt.Fprintln(w, "<tr><th>url</th><th>state</th><th>id</th><th>age</th><th>weight</th></tr>")
	for _, s := range snapshots {
		fmt.Fprintf(w, "<tr><td>%s</td><td>%s</td><td>%d</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(s.URL),
			html.EscapeString(s.State),
			s.ID,
			humanize.Comma(int64(s.Age)),
			humanize.FormatFloat("#.###", s.Weight),
		)
	}
	fmt.Fprintln(w, "</table>")
}
