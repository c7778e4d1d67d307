package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"git.fiblab.net/sim/ptal/config"
	"git.fiblab.net/sim/ptal/isochrone"
	"git.fiblab.net/sim/ptal/layer"
	"git.fiblab.net/sim/ptal/processing"
	"git.fiblab.net/sim/ptal/ptal"
	"git.fiblab.net/sim/ptal/report"
)

const (
	TASK_RELATIONSHIPS = "relationships"
	TASK_ATTRIBUTES    = "attributes"
	TASK_SCORE         = "score"
	TASK_ALL           = "all"
	TASK_ISOCHRONES    = "isochrones"
	TASK_ALGORITHMS    = "algorithms"
)

type taskOptions struct {
	XLSX    string
	Journal string
	// 等值线算法参数
	Algorithm  string
	SAPLayer   string
	Alpha      float64
	Isochrones string
	// 算法列表输出
	Out io.Writer
	// 进度日志间隔
	ProgressInterval time.Duration
}

func runTask(ctx context.Context, name string, project *layer.Project, cfg config.Config, opts taskOptions) error {
	switch name {
	case TASK_RELATIONSHIPS:
		return runRelationships(ctx, project, cfg, opts)
	case TASK_ATTRIBUTES:
		return ptal.UpdateAttributes(ctx, project, cfg)
	case TASK_SCORE:
		return runScore(ctx, project, cfg, opts)
	case TASK_ALL:
		if err := runRelationships(ctx, project, cfg, opts); err != nil {
			return err
		}
		if err := ptal.UpdateAttributes(ctx, project, cfg); err != nil {
			return err
		}
		return runScore(ctx, project, cfg, opts)
	case TASK_ISOCHRONES:
		return runIsochrones(ctx, project, cfg, opts)
	case TASK_ALGORITHMS:
		registry, err := newRegistry(cfg)
		if err != nil {
			return err
		}
		for _, d := range registry.Descriptors() {
			fmt.Fprintf(opts.Out, "%-28s %-20s %s\n", d.Name, d.Group, d.DisplayName)
		}
		return nil
	}
	return fmt.Errorf("unknown task: %s", name)
}

func runRelationships(ctx context.Context, project *layer.Project, cfg config.Config, opts taskOptions) error {
	task, err := ptal.NewRelationshipTask(ctx, project, cfg)
	if err != nil {
		return err
	}
	journal := opts.Journal
	if journal == "" {
		journal = cfg.Relationships.Journal
	}
	if journal != "" {
		j, err := layer.OpenGeoJSONSeqJournal(journal)
		if err != nil {
			return err
		}
		defer j.Close()
		task.Output().SetJournal(j)
		defer task.Output().SetJournal(nil)
	}

	manager := processing.NewTaskManager()
	h := manager.AddTask(ctx, task)
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.Done():
			if !h.Wait() {
				return errors.New("relationship task failed")
			}
			return nil
		case <-ticker.C:
			for _, a := range manager.Active() {
				log.Infof("%s: %.1f%%", a.Description(), a.Progress())
			}
		}
	}
}

func runScore(ctx context.Context, project *layer.Project, cfg config.Config, opts taskOptions) error {
	l, err := ptal.BuildScoreLayer(ctx, project, cfg)
	if err != nil {
		return err
	}
	if opts.XLSX != "" {
		return report.WriteXLSX(opts.XLSX, l)
	}
	return nil
}

func newRegistry(cfg config.Config) (*processing.Registry, error) {
	registry := processing.NewRegistry()
	if err := isochrone.Register(registry, cfg.Isochrone); err != nil {
		return nil, err
	}
	return registry, nil
}

func runIsochrones(ctx context.Context, project *layer.Project, cfg config.Config, opts taskOptions) error {
	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	params := processing.Parameters{
		isochrone.INPUT_NETWORK: cfg.Layers.Network,
		isochrone.INPUT_SAPS:    opts.SAPLayer,
		isochrone.OUTPUT:        opts.Isochrones,
	}
	if params[isochrone.INPUT_SAPS] == "" {
		params[isochrone.INPUT_SAPS] = cfg.Layers.SAPs[0].Name
	}
	if params[isochrone.OUTPUT] == "" {
		params[isochrone.OUTPUT] = "isochrones"
	}
	if opts.Alpha >= 0 {
		params[isochrone.ALPHA] = opts.Alpha
	}
	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = isochrone.NAME
	}
	pctx := &processing.Context{Project: project, Registry: registry}
	res, err := registry.Run(pctx, algorithm, params, processing.NewFeedback(ctx, algorithm))
	if err != nil {
		return err
	}
	log.Infof("%s finished, output layer %v", algorithm, res[isochrone.OUTPUT])
	return nil
}
