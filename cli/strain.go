package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/markertrack/strain"
)

// StrainAction is the corresponding Action for 'strain'.
func StrainAction(c *cli.Context) error {
	rows, err := parseRows(c.String(warpFlag))
	if err != nil {
		return err
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return errors.Errorf("warp row %d has %d values, expected %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	warp := mat.NewDense(len(rows), cols, data)
	if _, err := strain.Normalize(warp); err != nil {
		return err
	}
	ref, err := parsePoint(c.String(refFlag))
	if err != nil {
		return err
	}

	components := strain.Decompose(warp, ref, newLogger(c))
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Component", "Value"})
	for i, v := range components {
		t.AppendRow(table.Row{strain.ComponentNames[i], fmt.Sprintf("%.6g", v)})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}
