// Package report exports attribute tables for use outside the GIS.
package report

import (
	"bytes"
	"fmt"
	"os"

	"git.fiblab.net/sim/ptal/geoproc"
	"git.fiblab.net/sim/ptal/layer"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

var log = logrus.WithField("module", "report")

// BuildXLSX renders the attribute table of l, one row per feature, followed by the
// feature geometry as WKT.
func BuildXLSX(l *layer.Layer) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := l.Name
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := append(l.FieldNames(), "geometry")
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, feature := range l.Features() {
		row := make([]any, 0, len(header))
		for _, name := range l.FieldNames() {
			row = append(row, feature.Attribute(name))
		}
		if feature.Geometry != nil {
			row = append(row, geoproc.WKT(feature.Geometry))
		} else {
			row = append(row, nil)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteXLSX(path string, l *layer.Layer) error {
	data, err := BuildXLSX(l)
	if err != nil {
		return fmt.Errorf("build xlsx of %s: %w", l.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Infof("layer %s exported to %s", l.Name, path)
	return nil
}
