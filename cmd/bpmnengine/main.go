package main

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bpmnkit/engine/internal/config"
	"github.com/bpmnkit/engine/internal/httpapi"
	"github.com/bpmnkit/engine/internal/log"
	"github.com/bpmnkit/engine/pkg/bpmn"
	"github.com/bpmnkit/engine/pkg/storage/inmemory"
)

func main() {
	cfg := config.InitConfig()
	logger := log.Must(os.Getenv("BPMN_ENV") == "dev")
	defer logger.Sync()

	logger.Info("starting bpmn engine",
		zap.String("http_addr", cfg.HttpAddr),
		zap.String("db_host", cfg.DatabaseHost),
	)

	store := inmemory.NewStore()
	metrics := bpmn.NewMetrics(prometheus.DefaultRegisterer)
	engine := bpmn.NewEngine(store,
		bpmn.WithLogger(logger),
		bpmn.WithMetrics(metrics),
		bpmn.WithDelegate("log", bpmn.LogDelegate),
		bpmn.WithDelegate("echo", bpmn.EchoDelegate),
	)

	router := httpapi.NewRouter(engine, logger)
	logger.Fatal("http server exited", zap.Error(http.ListenAndServe(cfg.HttpAddr, router)))
}
