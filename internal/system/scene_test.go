package system

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/config"
	"github.com/l1jgo/meshfx/internal/fx"
	"github.com/l1jgo/meshfx/internal/persist"
	"github.com/l1jgo/meshfx/internal/world"
)

func TestSpecFromConfigRotation(t *testing.T) {
	spec := SpecFromConfig(config.EmitterSpawn{
		Name:     "chimney",
		Position: [3]float32{1, 2, 3},
		Axis:     [3]float32{0, 0, 2},
		Angle:    90,
	})
	got := spec.Rotation.Rotate(mgl32.Vec3{1, 0, 0})
	if !got.ApproxEqualThreshold(mgl32.Vec3{0, 1, 0}, 1e-5) {
		t.Errorf("rotated +X to %v", got)
	}
	if spec.Position != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("position %v", spec.Position)
	}

	plain := SpecFromConfig(config.EmitterSpawn{Name: "flat", Angle: 45})
	if plain.Rotation != mgl32.QuatIdent() {
		t.Errorf("zero axis gave rotation %v", plain.Rotation)
	}
}

func TestSnapshotRestoresSeedAndParams(t *testing.T) {
	l := newLoop(t, 100)
	inst, err := l.world.Spawn(world.SpawnSpec{
		Name:      "torch",
		DataBlock: "fire",
		Position:  mgl32.Vec3{4, 5, 6},
		Rotation:  mgl32.QuatRotate(1, mgl32.Vec3{0, 1, 0}),
	})
	if err != nil {
		t.Fatal(err)
	}
	p := inst.Emitter.Params()
	p.Particle.EjectionVelocity = 9
	inst.Emitter.SetParams(p)

	row := Snapshot(inst)
	spec := SpecFromRow(row)
	if spec.Seed != inst.Emitter.State().Seed || spec.Seed == 0 {
		t.Errorf("seed %d, want %d", spec.Seed, inst.Emitter.State().Seed)
	}
	if spec.Params == nil || spec.Params.Particle.EjectionVelocity != 9 {
		t.Fatalf("params not carried: %+v", spec.Params)
	}
	if spec.Position != inst.Host.Pos || spec.Rotation != inst.Host.Rot {
		t.Errorf("transform %v %v", spec.Position, spec.Rotation)
	}
	if spec.DataBlock != "fire" {
		t.Errorf("datablock %q", spec.DataBlock)
	}
}

func TestMergeScene(t *testing.T) {
	params := fx.DefaultParams()
	configured := []config.EmitterSpawn{
		{Name: "campfire", DataBlock: "fire"},
		{Name: "chimney", DataBlock: "smoke"},
	}
	stored := []persist.EmitterRow{
		{Name: "chimney", DataBlock: "smoke", Position: [3]float32{0, 0, 9}, Rotation: [4]float32{1, 0, 0, 0}, Seed: 5, Params: &params},
		{Name: "scripted", DataBlock: "sparks", Rotation: [4]float32{1, 0, 0, 0}},
	}
	specs := MergeScene(configured, stored)
	var names []string
	for _, s := range specs {
		names = append(names, s.Name)
	}
	want := []string{"campfire", "chimney", "scripted"}
	if len(names) != len(want) {
		t.Fatalf("names %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names %v, want %v", names, want)
		}
	}
	if specs[1].Seed != 5 || specs[1].Position.Z() != 9 {
		t.Errorf("stored row did not win: %+v", specs[1])
	}
	if specs[0].Seed != 0 || specs[0].Params != nil {
		t.Errorf("configured entry picked up stored state: %+v", specs[0])
	}
}
