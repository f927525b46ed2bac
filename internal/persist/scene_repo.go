package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/meshfx/internal/fx"
)

// EmitterRow is the persisted snapshot of one placed emitter.
type EmitterRow struct {
	Name            string
	DataBlock       string
	Mesh            string
	Position        [3]float32
	Rotation        [4]float32 // w, x, y, z
	DeleteWhenEmpty bool
	Seed            uint64
	Params          *fx.Params // nil keeps the datablock defaults on restore
	UpdatedAt       time.Time
}

// SceneRepo 儲存發射器實例與場景風向量。
type SceneRepo struct {
	db *DB
}

func NewSceneRepo(db *DB) *SceneRepo {
	return &SceneRepo{db: db}
}

// SaveEmitters 在單一交易中批次 upsert 發射器資料。
func (r *SceneRepo) SaveEmitters(ctx context.Context, rows []EmitterRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save emitters begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := range rows {
		e := &rows[i]
		batch.Queue(
			`INSERT INTO emitters (name, datablock, mesh, pos_x, pos_y, pos_z,
			                       rot_w, rot_x, rot_y, rot_z, delete_when_empty, seed, params, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
			 ON CONFLICT (name) DO UPDATE SET
			   datablock = EXCLUDED.datablock, mesh = EXCLUDED.mesh,
			   pos_x = EXCLUDED.pos_x, pos_y = EXCLUDED.pos_y, pos_z = EXCLUDED.pos_z,
			   rot_w = EXCLUDED.rot_w, rot_x = EXCLUDED.rot_x, rot_y = EXCLUDED.rot_y, rot_z = EXCLUDED.rot_z,
			   delete_when_empty = EXCLUDED.delete_when_empty, seed = EXCLUDED.seed,
			   params = EXCLUDED.params, updated_at = NOW()`,
			e.Name, e.DataBlock, e.Mesh, e.Position[0], e.Position[1], e.Position[2],
			e.Rotation[0], e.Rotation[1], e.Rotation[2], e.Rotation[3],
			e.DeleteWhenEmpty, int64(e.Seed), e.Params,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save emitters: %w", err)
	}
	return tx.Commit(ctx)
}

// LoadEmitters 依名稱排序載入所有已儲存的發射器。
func (r *SceneRepo) LoadEmitters(ctx context.Context) ([]EmitterRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT name, datablock, mesh, pos_x, pos_y, pos_z, rot_w, rot_x, rot_y, rot_z,
		        delete_when_empty, seed, params, updated_at
		 FROM emitters ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EmitterRow
	for rows.Next() {
		var e EmitterRow
		var seed int64
		if err := rows.Scan(
			&e.Name, &e.DataBlock, &e.Mesh,
			&e.Position[0], &e.Position[1], &e.Position[2],
			&e.Rotation[0], &e.Rotation[1], &e.Rotation[2], &e.Rotation[3],
			&e.DeleteWhenEmpty, &seed, &e.Params, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		e.Seed = uint64(seed)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEmitters 刪除指定名稱的資料列，不存在的名稱直接忽略。
func (r *SceneRepo) DeleteEmitters(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM emitters WHERE name = ANY($1)`, names)
	return err
}

func (r *SceneRepo) SaveWind(ctx context.Context, v [3]float32) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO scene_settings (id, wind_x, wind_y, wind_z, updated_at)
		 VALUES (1, $1, $2, $3, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   wind_x = EXCLUDED.wind_x, wind_y = EXCLUDED.wind_y, wind_z = EXCLUDED.wind_z,
		   updated_at = NOW()`,
		v[0], v[1], v[2],
	)
	return err
}

// LoadWind 載入已儲存的風向量。從未儲存時 ok 為 false。
func (r *SceneRepo) LoadWind(ctx context.Context) (v [3]float32, ok bool, err error) {
	err = r.db.Pool.QueryRow(ctx,
		`SELECT wind_x, wind_y, wind_z FROM scene_settings WHERE id = 1`,
	).Scan(&v[0], &v[1], &v[2])
	if errors.Is(err, pgx.ErrNoRows) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}
