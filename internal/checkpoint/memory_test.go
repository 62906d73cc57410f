package checkpoint

import (
	"context"
	"testing"

	"GuardianEye/internal/state"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv := state.New("user-1", "session-1")
	conv.AppendMessage(state.RoleUser, "hello")
	conv.AppendPath("main_supervisor -> governance_team")
	conv.SetIntermediate("security_knowledge", "answer")

	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}

	loaded, err := store.Load(ctx, "session-1", "user-1")
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hello" {
		t.Fatalf("消息未还原: %v", loaded.Messages)
	}
	if len(loaded.ExecutionPath) != 1 {
		t.Fatalf("执行路径未还原: %v", loaded.ExecutionPath)
	}
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load(context.Background(), "absent", "user-1")
	if !IsNotFound(err) {
		t.Fatalf("缺失快照应返回 NOT_FOUND: %v", err)
	}
}

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv := state.New("user-1", "session-1")
	conv.AppendMessage(state.RoleUser, "original")
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}

	// 保存后修改原对象不应影响存储内容。
	conv.AppendMessage(state.RoleAssistant, "mutated after save")

	loaded, err := store.Load(ctx, "session-1", "user-1")
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if len(loaded.Messages) != 1 {
		t.Fatalf("存储内容被外部修改污染: %v", loaded.Messages)
	}

	// 读取后修改副本同样不应影响存储内容。
	loaded.AppendMessage(state.RoleAssistant, "mutated after load")
	reloaded, err := store.Load(ctx, "session-1", "user-1")
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if len(reloaded.Messages) != 1 {
		t.Fatalf("读取副本未隔离: %v", reloaded.Messages)
	}
}

func TestMemoryStoreKeyedByUserAndSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := state.New("user-1", "session-1")
	first.FinalResult = "first"
	second := state.New("user-2", "session-1")
	second.FinalResult = "second"

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}

	loaded, err := store.Load(ctx, "session-1", "user-2")
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if loaded.FinalResult != "second" {
		t.Fatalf("同名会话不同用户应互不覆盖: %q", loaded.FinalResult)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv := state.New("user-1", "session-1")
	if err := store.Save(ctx, conv); err != nil {
		t.Fatalf("Save 失败: %v", err)
	}
	if err := store.Delete(ctx, "session-1", "user-1"); err != nil {
		t.Fatalf("Delete 失败: %v", err)
	}
	if _, err := store.Load(ctx, "session-1", "user-1"); !IsNotFound(err) {
		t.Fatalf("删除后应返回 NOT_FOUND: %v", err)
	}
	if err := store.Delete(ctx, "session-1", "user-1"); err != nil {
		t.Fatalf("重复删除应视为成功: %v", err)
	}
}

func TestMemoryStoreRejectsMissingSession(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Save(context.Background(), state.New("user-1", "")); err == nil {
		t.Fatal("缺少会话 ID 应返回错误")
	}
}
