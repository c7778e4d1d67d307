package main

import (
	"context"
	"flag"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"git.fiblab.net/sim/ptal/config"
	"git.fiblab.net/sim/ptal/layer"
	"git.fiblab.net/sim/ptal/network"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var (
	benchmarkCount = flag.Int("benchmark.count", 1000, "the random shortest path count for benchmark")
	benchmarkSeed  = flag.Int64("benchmark.seed", 0, "the seed for benchmark")
	benchmarkCPU   = flag.Int("benchmark.cpu", 1, "the cpu count for benchmark")
)

// 在整个路网上随机选取节点对计算最短路
func runBenchmark(project *layer.Project, cfg config.Config) {
	roads, err := project.MapLayerByName(context.Background(), cfg.Layers.Network)
	if err != nil {
		log.Fatalf("benchmark: %v", err)
	}
	lines := lo.FlatMap(roads.Features(), func(f *layer.Feature, _ int) []orb.LineString {
		switch g := f.Geometry.(type) {
		case orb.LineString:
			return []orb.LineString{g}
		case orb.MultiLineString:
			return g
		}
		return nil
	})
	start := time.Now()
	net := network.Build(lines, nil)
	log.Infof("benchmark: network built with %d nodes in %v", net.NodeCount(), time.Since(start))
	if net.NodeCount() == 0 {
		log.Fatal("benchmark: empty network")
	}
	log.Logger.SetLevel(logrus.WarnLevel)

	// 设置随机种子
	e := rand.New(rand.NewSource(*benchmarkSeed))
	pairs := make([][2]int, *benchmarkCount)
	for i := range pairs {
		pairs[i] = [2]int{e.Intn(net.NodeCount()), e.Intn(net.NodeCount())}
	}

	// 开始benchmark
	start = time.Now()
	var success atomic.Int32
	search := func(pair [2]int) {
		d, err := net.NodeDistance(pair[0], pair[1])
		if err == nil && !math.IsInf(d, 1) {
			success.Add(1)
		}
	}
	if *benchmarkCPU == 1 {
		for _, pair := range pairs {
			search(pair)
		}
	} else {
		// 设置cpu数量
		runtime.GOMAXPROCS(*benchmarkCPU)
		var wg sync.WaitGroup
		wg.Add(len(pairs))
		for _, pair := range pairs {
			go func(pair [2]int) {
				defer wg.Done()
				search(pair)
			}(pair)
		}
		wg.Wait()
	}
	timeCost := time.Since(start) * time.Duration(*benchmarkCPU)
	log.Warn(
		"benchmark finished", "\n",
		"count:", *benchmarkCount, "\n",
		"time:", timeCost, "\n",
		"avg:", timeCost/time.Duration(lo.Max([]int{*benchmarkCount, 1})), "\n",
		"success:", success.Load(), "\n",
	)
}
