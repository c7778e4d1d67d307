// Package ptal computes Public Transport Accessibility Levels: POI to SAP network
// relationships, per relationship access attributes and the per POI score.
package ptal

import (
	"fmt"

	"git.fiblab.net/sim/ptal/layer"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "ptal")

const (
	FIELD_POI_ID         = "POI_ID"
	FIELD_DISTANCE       = "Distance"
	FIELD_TRANSPORT_MODE = "transport_mode"
	FIELD_TT             = "TT"
	FIELD_SWT            = "SWT"
	FIELD_AWT            = "AWT"
	FIELD_TAT            = "TAT"
	FIELD_EDF            = "EDF"
	FIELD_AI_BUS         = "AI_bus"
	FIELD_AI_TREIN       = "AI_trein"
	FIELD_PTAI           = "PTAI"

	ROUTE_BUS   = "bus"
	ROUTE_TREIN = "trein"

	MODE_WALKING = "walking"
	MODE_CYCLING = "cycling"
)

// poiID reads the POI identifier column, falling back to the feature id when the
// layer has no such column.
func poiID(l *layer.Layer, f *layer.Feature, column string) (int64, error) {
	if !l.HasField(column) {
		return f.ID, nil
	}
	v, err := l.Value(f, column)
	if err != nil {
		return 0, err
	}
	id, ok := layer.ToInt(v)
	if !ok {
		return 0, fmt.Errorf("feature %d of layer %s: %s is not an integer: %v", f.ID, l.Name, column, v)
	}
	return id, nil
}
