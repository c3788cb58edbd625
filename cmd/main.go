package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interview-review-go/internal/api/handler"
	"interview-review-go/internal/api/router"
	"interview-review-go/internal/config"
	"interview-review-go/internal/evaluator"
	appLogger "interview-review-go/internal/logger"
	"interview-review-go/internal/processor"
	"interview-review-go/internal/reporter"
	"interview-review-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "配置文件路径")
	pflag.Parse()

	// 配置文件允许不存在，纯环境变量部署时传空路径
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = ""
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("加载配置失败")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.Fatal().Err(err).Msg("配置校验失败")
	}

	initLogger(cfg)
	glog.Info("配置加载成功")

	if err := os.MkdirAll(cfg.Service.TempDir, 0o755); err != nil {
		glog.Fatalf("创建临时目录失败: %v", err)
	}

	// RabbitMQ和Redis是硬依赖，初始化失败直接退出
	storageManager, err := storage.NewStorage(cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	openaiClient := newOpenAIClient(&cfg.OpenAI)
	questionEval := evaluator.NewQuestionEvaluator(openaiClient, &cfg.OpenAI)
	overallEval := evaluator.NewOverallEvaluator(openaiClient, &cfg.OpenAI)
	resultReporter := reporter.NewHTTPResultReporter(&cfg.Reporter)
	glog.Info("评估引擎与回调客户端初始化成功")

	// MySQL归档是可选旁路
	var archiver processor.ResultArchiver
	if storageManager.MySQL != nil {
		archiver = storageManager.MySQL
	}

	proc := processor.NewReviewProcessor(
		cfg,
		storageManager.RabbitMQ,
		storageManager.Redis,
		questionEval,
		overallEval,
		resultReporter,
		archiver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 依赖不可用时拒绝启动，不能在无法写状态的情况下消费消息
	if err := proc.CheckHealth(ctx); err != nil {
		glog.Fatalf("启动前健康检查失败: %v", err)
	}
	if err := proc.Start(ctx); err != nil {
		glog.Fatalf("启动处理服务失败: %v", err)
	}
	defer proc.Stop()

	statusHandler := handler.NewStatusHandler(storageManager.Redis, proc, proc)

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, statusHandler)
	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	proc.Stop()
	glog.Info("消费者已停止")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// initLogger 初始化zerolog并接管Hertz的日志输出
func initLogger(cfg *config.Config) {
	appLogger.Init(appLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	hertzCompatibleLogger := hertzadapter.From(appLogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
}

// newOpenAIClient 按配置创建评估模型客户端，支持兼容OpenAI协议的网关
func newOpenAIClient(cfg *config.OpenAIConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient.Timeout = config.GetDuration(cfg.Timeout, 60*time.Second)
	return openai.NewClientWithConfig(clientConfig)
}
