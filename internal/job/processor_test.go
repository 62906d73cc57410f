package job

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"GuardianEye/internal/orchestrator"
)

type fakeExecutor struct {
	processed atomic.Int32
	failUntil int32
	latency   time.Duration
	lastAgent atomic.Value
}

func (f *fakeExecutor) Execute(ctx context.Context, req orchestrator.Request) *orchestrator.Response {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return &orchestrator.Response{
				SessionID: req.SessionID,
				Error:     ctx.Err().Error(),
				Result:    "Error processing request: " + ctx.Err().Error(),
			}
		}
	}
	count := f.processed.Add(1)
	if count <= f.failUntil {
		return &orchestrator.Response{
			SessionID: req.SessionID,
			Error:     "llm backend unavailable",
			Result:    "Error processing request: llm backend unavailable",
		}
	}
	return &orchestrator.Response{
		Result:        "analysis complete",
		ExecutionPath: []string{"main_supervisor -> security_ops_team", "security_ops_team", "incident_triage"},
		SessionID:     req.SessionID,
		Metadata:      map[string]any{"agent": "incident_triage"},
	}
}

func (f *fakeExecutor) ExecuteAgent(ctx context.Context, name string, req orchestrator.Request) *orchestrator.Response {
	f.lastAgent.Store(name)
	resp := f.Execute(ctx, req)
	if resp.Error == "" {
		resp.ExecutionPath = []string{name}
		resp.Metadata = map[string]any{"agent": name}
	}
	return resp
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		query := fmt.Sprintf("triage alert %d", i)
		if _, err := service.Submit(ctx, SubmitRequest{Query: query}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesFailedResponses(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{failUntil: 2}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(1))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	submitted, err := service.Submit(ctx, SubmitRequest{Query: "hunt for iocs"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if final.Status != StatusSucceeded {
		t.Fatalf("expected success after retries, got %+v", final)
	}
	if final.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", final.Attempts)
	}
	if final.Result == nil || final.Result.Result != "analysis complete" {
		t.Fatalf("unexpected result: %+v", final.Result)
	}
	if final.Result.Agent != "incident_triage" {
		t.Fatalf("unexpected result agent: %q", final.Result.Agent)
	}
}

func TestProcessorDispatchesDirectAgentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(1))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	submitted, err := service.Submit(ctx, SubmitRequest{Query: "review firewall policy", Agent: "security_knowledge"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if final.Status != StatusSucceeded {
		t.Fatalf("expected success, got %+v", final)
	}
	if got := executor.lastAgent.Load(); got != "security_knowledge" {
		t.Fatalf("expected direct dispatch to security_knowledge, got %v", got)
	}
	if final.Result == nil || final.Result.Agent != "security_knowledge" {
		t.Fatalf("unexpected result agent: %+v", final.Result)
	}
}

func TestServiceSubmitValidation(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	service := NewService(store, queue, 3)
	ctx := context.Background()

	if _, err := service.Submit(ctx, SubmitRequest{Query: "   "}); err == nil {
		t.Fatal("expected validation error for empty query")
	}
	if _, err := service.Submit(ctx, SubmitRequest{Query: "check", Agent: "not_a_specialist"}); err == nil {
		t.Fatal("expected validation error for unknown agent")
	}

	first, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", Query: "check policy"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}
	second, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", Query: "check policy"})
	if err != nil {
		t.Fatalf("重复提交失败: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected idempotent submit, got %s vs %s", first.ID, second.ID)
	}
}
