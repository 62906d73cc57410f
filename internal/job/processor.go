package job

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "GuardianEye/internal/errors"
	"GuardianEye/internal/observability/alerting"
	"GuardianEye/internal/orchestrator"
	"GuardianEye/pkg/logger"
)

// Executor 定义了处理器所需的编排能力。
// 编排层永远返回结构化响应，失败通过 Response.Error 传递。
type Executor interface {
	Execute(ctx context.Context, req orchestrator.Request) *orchestrator.Response
	ExecuteAgent(ctx context.Context, name string, req orchestrator.Request) *orchestrator.Response
}

// Processor 负责从队列消费任务并交给编排层执行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动任务处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	j, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted) {
			p.logDebug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		p.emitAlert(ctx, &Job{ID: jobID}, CodeJobProcessing, err, "claim")
		return err
	}

	req := orchestrator.Request{
		Query:     j.Query,
		Context:   cloneContext(j.Context),
		SessionID: j.SessionID,
		UserID:    j.UserID,
	}
	var resp *orchestrator.Response
	if j.Agent != "" {
		resp = p.executor.ExecuteAgent(ctx, j.Agent, req)
	} else {
		resp = p.executor.Execute(ctx, req)
	}
	if resp == nil {
		return p.handleExecutionFailure(ctx, j, xerrors.New(CodeJobProcessing, "编排层返回空响应"))
	}
	if resp.Error != "" {
		return p.handleExecutionFailure(ctx, j, xerrors.New(CodeJobProcessing, resp.Error))
	}

	record := Result{
		Result:        resp.Result,
		ExecutionPath: append([]string(nil), resp.ExecutionPath...),
		SessionID:     resp.SessionID,
		Agent:         responseAgent(resp),
	}
	if err := p.store.MarkSucceeded(ctx, j.ID, record); err != nil {
		logger.L().Error("标记任务成功状态失败", slog.Any("error", err), slog.String("job_id", j.ID))
		if storeErr := p.store.MarkFailed(ctx, j.ID, CodeJobProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("job_id", j.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, j.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("任务 %s 在标记成功失败后重投失败", j.ID))
		}
		logger.Audit().Warn("任务标记成功失败后重试",
			slog.String("job_id", j.ID),
			slog.String("query", j.Query),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Audit().Info("任务执行成功",
		slog.String("job_id", j.ID),
		slog.String("query", j.Query),
		slog.String("agent", record.Agent),
		slog.String("session_id", record.SessionID),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, j *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := j.Attempts >= j.MaxRetries || !retryable

	if terminal && p.recovery != nil {
		if fallback, recErr := p.recovery.Recover(ctx, j, execErr); recErr != nil {
			wrapped := xerrors.Wrap(CodeJobCompensate, recErr, "任务补偿失败")
			logger.L().Error("执行补偿逻辑失败",
				slog.Any("error", wrapped),
				slog.String("job_id", j.ID))
			p.emitAlert(ctx, j, CodeJobCompensate, wrapped, "compensate")
		} else if fallback != nil {
			if fallback.Result == "" {
				fallback.Result = fmt.Sprintf("降级处理: %v", execErr)
			}
			if err := p.store.MarkSucceeded(ctx, j.ID, *fallback); err != nil {
				logger.L().Error("记录降级结果失败", slog.Any("error", err), slog.String("job_id", j.ID))
				if storeErr := p.store.MarkFailed(ctx, j.ID, code, err.Error(), false); storeErr != nil {
					logger.L().Error("降级失败后的回写失败状态出错", slog.Any("error", storeErr), slog.String("job_id", j.ID))
					return storeErr
				}
				if pubErr := p.producer.Publish(ctx, j.ID); pubErr != nil {
					return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("任务 %s 在降级失败后重投失败", j.ID))
				}
				return nil
			}
			logger.Audit().Warn("任务降级完成",
				slog.String("job_id", j.ID),
				slog.String("query", j.Query),
				slog.String("result", fallback.Result),
			)
			p.emitAlert(ctx, j, code, execErr, "degraded")
			return nil
		}
	}

	if storeErr := p.store.MarkFailed(ctx, j.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("job_id", j.ID))
		return storeErr
	}
	logger.Audit().Warn("任务执行失败",
		slog.String("job_id", j.ID),
		slog.String("query", j.Query),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", j.Attempts),
		slog.Int("max_retries", j.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.emitAlert(ctx, j, code, execErr, stage)

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, j.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", j.ID))
		}
		p.logDebug("任务已重新排队", slog.String("job_id", j.ID), slog.Int("attempts", j.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}

func (p *Processor) emitAlert(ctx context.Context, j *Job, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || j == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	if cause != nil {
		message = cause.Error()
	}
	metadata := map[string]string{
		"stage":  stage,
		"job_id": j.ID,
	}
	if cause != nil {
		metadata["cause"] = cause.Error()
	}
	event := alerting.Event{
		Code:        code,
		Message:     message,
		Severity:    attrs.Severity,
		SessionID:   j.SessionID,
		Agent:       j.Agent,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxRetries,
		Metadata:    metadata,
		OccurredAt:  time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("job_id", j.ID),
			slog.String("stage", stage),
		)
	}
}

func responseAgent(resp *orchestrator.Response) string {
	if resp == nil || resp.Metadata == nil {
		return ""
	}
	if name, ok := resp.Metadata["agent"].(string); ok {
		return name
	}
	return ""
}
