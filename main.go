package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"git.fiblab.net/sim/ptal/config"
	"git.fiblab.net/sim/ptal/layer"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "main")

var (
	// 配置信息
	mongoURI    = flag.String("mongo_uri", "", "mongo db uri")
	projectPath = flag.String("project", "", "project layers [format: {dir of geojson files} or {db}]")
	configPath  = flag.String("config", "", "yaml config file (empty means defaults)")
	taskName    = flag.String("task", TASK_ALL, "task [relationships, attributes, score, all, isochrones, algorithms]")
	logLevel    = flag.String("log-level", "info", "log level [debug, info, warn, error, fatal, panic]")

	// 输出
	xlsxPath    = flag.String("xlsx", "", "export the PTAL layer to this xlsx file")
	journalPath = flag.String("journal", "", "append committed relationships to this GeoJSON sequence file")

	// 等值线
	isochroneAlgorithm = flag.String("isochrone.algorithm", "generateisochrones", "isochrone algorithm [generateisochrones, generateisochronescounted]")
	isochroneSAPs      = flag.String("isochrone.saps", "", "SAP layer of the isochrones (empty means the first configured SAP layer)")
	isochroneAlpha     = flag.Float64("isochrone.alpha", -1, "concave hull alpha in [0, 1] (negative means the algorithm default)")
	isochroneOutput    = flag.String("isochrone.output", "isochrones", "isochrone output layer")

	// 性能测试
	benchmark = flag.Bool("benchmark", false, "benchmark mode")
	pprofAddr = flag.String("pprof", "", "pprof and metrics listening address (empty means disable)")

	LOG_LEVELS = map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}
)

func main() {
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	flag.Parse()
	if level, ok := LOG_LEVELS[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		logrus.Fatalf("invalid log level: %s", *logLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *pprofAddr != "" {
		// 启动pprof
		startHTTPDebugger(*pprofAddr)
	}

	// 算法列表不需要图层
	if *taskName == TASK_ALGORITHMS {
		if err := runTask(context.Background(), *taskName, nil, cfg, taskOptions{Out: os.Stdout}); err != nil {
			log.Fatal(err)
		}
		return
	}

	path, err := NewPath(*projectPath)
	if err != nil {
		log.Fatalf("invalid project path: %v", err)
	}
	store, closeStore, err := path.Store(*mongoURI)
	if err != nil {
		log.Fatalf("failed to open project %s: %v", path, err)
	}
	defer closeStore()
	project := layer.NewProject(store)

	if *benchmark {
		// 性能测试
		runBenchmark(project, cfg)
		return
	}

	// 创建监听退出chan，第一次信号取消任务，第二次强制结束
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Info("stopping...")
		cancel()
		<-signalCh
		os.Exit(1) // 强制结束
	}()

	err = runTask(ctx, *taskName, project, cfg, taskOptions{
		XLSX:       *xlsxPath,
		Journal:    *journalPath,
		Algorithm:  *isochroneAlgorithm,
		SAPLayer:   *isochroneSAPs,
		Alpha:      *isochroneAlpha,
		Isochrones: *isochroneOutput,
		Out:        os.Stdout,
	})
	// 已提交的结果仍然保存
	if saveErr := project.Save(context.Background()); saveErr != nil {
		log.Errorf("failed to save project %s: %v", path, saveErr)
	}
	if err != nil {
		log.Fatalf("task %s failed: %v", *taskName, err)
	}
	log.Infof("task %s finished", *taskName)
}
