package ptal

import (
	"context"
	"strings"

	"git.fiblab.net/sim/ptal/config"
	"git.fiblab.net/sim/ptal/layer"
	"github.com/samber/lo"
)

// AccessPolicy derives the access mode and times of a relationship from its route type,
// network distance and service frequency.
type AccessPolicy struct {
	WalkSpeed          float64
	CycleSpeed         float64
	TrainWalkThreshold float64
	TrainWaitOffset    float64
	OtherWaitOffset    float64
}

func NewAccessPolicy(c config.Access) AccessPolicy {
	return AccessPolicy{
		WalkSpeed:          c.WalkSpeed,
		CycleSpeed:         c.CycleSpeed,
		TrainWalkThreshold: c.TrainWalkThreshold,
		TrainWaitOffset:    c.TrainWaitOffset,
		OtherWaitOffset:    c.OtherWaitOffset,
	}
}

// Access holds the derived values; nil means undefined.
type Access struct {
	Mode string // 空串表示未定义
	TT   *float64
	SWT  *float64
	AWT  *float64
	TAT  *float64
	EDF  *float64
}

// Compute applies the policy. routeType is compared case-insensitively; a nil distance
// or frequency is undefined and leaves the values depending on it undefined.
func (p AccessPolicy) Compute(routeType string, distance, frequency *float64) Access {
	var a Access
	routeType = strings.ToLower(routeType)
	switch routeType {
	case ROUTE_BUS:
		a.Mode = MODE_WALKING
		if distance != nil {
			a.TT = lo.ToPtr(*distance / p.WalkSpeed)
		}
	case ROUTE_TREIN:
		if distance != nil {
			if *distance <= p.TrainWalkThreshold {
				a.Mode = MODE_WALKING
				a.TT = lo.ToPtr(*distance / p.WalkSpeed)
			} else {
				a.Mode = MODE_CYCLING
				a.TT = lo.ToPtr(*distance / p.CycleSpeed)
			}
		}
	}
	if frequency != nil && *frequency > 0 {
		a.SWT = lo.ToPtr(0.5 * (60 / *frequency))
	}
	if a.SWT != nil {
		if routeType == ROUTE_TREIN {
			a.AWT = lo.ToPtr(*a.SWT + p.TrainWaitOffset)
		} else {
			a.AWT = lo.ToPtr(*a.SWT + p.OtherWaitOffset)
		}
	}
	if a.TT != nil && a.AWT != nil {
		a.TAT = lo.ToPtr(*a.TT + *a.AWT)
	}
	if a.TAT != nil && *a.TAT > 0 {
		a.EDF = lo.ToPtr(0.5 * (60 / *a.TAT))
	}
	return a
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// UpdateAttributes adds the access fields to the relationship layer, if missing, and
// rewrites every row with the values computed by the policy.
func UpdateAttributes(ctx context.Context, project *layer.Project, cfg config.Config) error {
	l, err := project.MapLayerByName(ctx, cfg.Layers.Relationships)
	if err != nil {
		return err
	}
	routeCol, freqCol := cfg.Columns.RouteType, cfg.Columns.Frequency
	if err := l.RequireFields(routeCol, FIELD_DISTANCE, freqCol); err != nil {
		return err
	}
	added := l.AddFields(
		layer.Field{Name: FIELD_TRANSPORT_MODE, Type: layer.String},
		layer.Field{Name: FIELD_TT, Type: layer.Double},
		layer.Field{Name: FIELD_SWT, Type: layer.Double},
		layer.Field{Name: FIELD_AWT, Type: layer.Double},
		layer.Field{Name: FIELD_TAT, Type: layer.Double},
		layer.Field{Name: FIELD_EDF, Type: layer.Double},
	)
	log.Debugf("%d access fields added to %s", added, l.Name)

	policy := NewAccessPolicy(cfg.Access)
	l.StartEditing()
	if err := updateRows(l, policy, routeCol, freqCol); err != nil {
		l.RollBack()
		return err
	}
	if err := l.CommitChanges(); err != nil {
		return err
	}
	project.MarkModified(l.Name)
	log.Infof("transport mode, TT, SWT, AWT, TAT and EDF of %d rows in %s updated", l.FeatureCount(), l.Name)
	return nil
}

func updateRows(l *layer.Layer, policy AccessPolicy, routeCol, freqCol string) error {
	for _, f := range l.Features() {
		routeType, _, err := l.String(f, routeCol)
		if err != nil {
			return err
		}
		distance, hasDistance, err := l.Float(f, FIELD_DISTANCE)
		if err != nil {
			return err
		}
		frequency, hasFrequency, err := l.Float(f, freqCol)
		if err != nil {
			return err
		}
		a := policy.Compute(routeType, optional(distance, hasDistance), optional(frequency, hasFrequency))

		u := f.Clone()
		if a.Mode != "" {
			u.SetAttribute(FIELD_TRANSPORT_MODE, a.Mode)
		}
		u.SetAttribute(FIELD_TT, nullable(a.TT))
		u.SetAttribute(FIELD_SWT, nullable(a.SWT))
		u.SetAttribute(FIELD_AWT, nullable(a.AWT))
		u.SetAttribute(FIELD_TAT, nullable(a.TAT))
		u.SetAttribute(FIELD_EDF, nullable(a.EDF))
		if err := l.UpdateFeature(u); err != nil {
			return err
		}
	}
	return nil
}
