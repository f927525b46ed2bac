package event

import "github.com/l1jgo/meshfx/internal/core/ecs"

type EmitterSpawned struct {
	Entity ecs.EntityID
	Name   string
	Ghost  uint32
}

// EmitterEmptied 在標記為清空即刪除的發射器失去最後一個粒子時觸發一次。
// 發射器會在同一 tick 的清除階段銷毀。
type EmitterEmptied struct {
	Entity ecs.EntityID
	Name   string
}

type EmitterDestroyed struct {
	Entity ecs.EntityID
	Name   string
	Ghost  uint32
}

// ConfigWarning carries a diagnostic raised while configuring an emitter.
type ConfigWarning struct {
	Name   string
	Reason string
}

type ObserverJoined struct {
	SessionID uint64
	Name      string
}

type ObserverLeft struct {
	SessionID uint64
	Name      string
}

type WindChanged struct {
	X, Y, Z float32
}
