package system

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/config"
	"github.com/l1jgo/meshfx/internal/persist"
	"github.com/l1jgo/meshfx/internal/world"
)

// SpecFromConfig 轉換設定檔中的 [[emitters]] 項目。
func SpecFromConfig(e config.EmitterSpawn) world.SpawnSpec {
	rot := mgl32.QuatIdent()
	axis := mgl32.Vec3(e.Axis)
	if axis.Len() > 1e-6 && e.Angle != 0 {
		rot = mgl32.QuatRotate(mgl32.DegToRad(e.Angle), axis.Normalize())
	}
	return world.SpawnSpec{
		Name:            e.Name,
		DataBlock:       e.DataBlock,
		Mesh:            e.Mesh,
		Position:        mgl32.Vec3(e.Position),
		Rotation:        rot,
		DeleteWhenEmpty: e.DeleteWhenEmpty,
	}
}

// SpecFromRow 由存檔重建生成規格。
// 保留存檔的種子與參數，讓發射器重啟後外觀一致。
func SpecFromRow(r persist.EmitterRow) world.SpawnSpec {
	return world.SpawnSpec{
		Name:            r.Name,
		DataBlock:       r.DataBlock,
		Mesh:            r.Mesh,
		Position:        mgl32.Vec3(r.Position),
		Rotation:        mgl32.Quat{W: r.Rotation[0], V: mgl32.Vec3{r.Rotation[1], r.Rotation[2], r.Rotation[3]}},
		DeleteWhenEmpty: r.DeleteWhenEmpty,
		Seed:            r.Seed,
		Params:          r.Params,
	}
}

// Snapshot captures one instance for storage.
func Snapshot(inst *world.Instance) persist.EmitterRow {
	st := inst.Emitter.State()
	params := inst.Emitter.Params()
	return persist.EmitterRow{
		Name:            inst.Name,
		DataBlock:       st.DataBlock,
		Mesh:            inst.Mesh,
		Position:        inst.Host.Pos,
		Rotation:        [4]float32{inst.Host.Rot.W, inst.Host.Rot.V[0], inst.Host.Rot.V[1], inst.Host.Rot.V[2]},
		DeleteWhenEmpty: st.DeleteWhenEmpty,
		Seed:            st.Seed,
		Params:          &params,
	}
}

// MergeScene 合併設定檔的生成清單與資料庫存檔。
// 同名時以存檔取代設定檔項目；執行期生成的發射器依存檔順序接在後面。
func MergeScene(configured []config.EmitterSpawn, stored []persist.EmitterRow) []world.SpawnSpec {
	byName := make(map[string]persist.EmitterRow, len(stored))
	for _, r := range stored {
		byName[r.Name] = r
	}
	specs := make([]world.SpawnSpec, 0, len(configured)+len(stored))
	for _, c := range configured {
		if r, ok := byName[c.Name]; ok {
			specs = append(specs, SpecFromRow(r))
			delete(byName, c.Name)
			continue
		}
		specs = append(specs, SpecFromConfig(c))
	}
	for _, r := range stored {
		if _, ok := byName[r.Name]; ok {
			specs = append(specs, SpecFromRow(r))
		}
	}
	return specs
}
