package services

import (
	"context"

	"helpdesk/internal/workflow"
)

// ActorResolver 提供执行操作的用户身份
type ActorResolver interface {
	ResolveActor(ctx context.Context) (uint, error)
}

type actorKey struct{}

// WithActor 将操作人写入 context
func WithActor(ctx context.Context, actorID uint) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext 读取 context 中的操作人
func ActorFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(actorKey{}).(uint)
	return id, ok && id != 0
}

// ContextActorResolver 从 context 解析操作人
type ContextActorResolver struct{}

func (ContextActorResolver) ResolveActor(ctx context.Context) (uint, error) {
	id, ok := ActorFromContext(ctx)
	if !ok {
		return 0, workflow.ErrMissingActor
	}
	return id, nil
}

// StaticActorResolver 固定操作人，供 CLI 和系统任务使用
type StaticActorResolver uint

func (r StaticActorResolver) ResolveActor(context.Context) (uint, error) {
	if r == 0 {
		return 0, workflow.ErrMissingActor
	}
	return uint(r), nil
}
