package sqlite

import (
	"context"
	"fmt"

	"github.com/warp/asset-engine/depreciation"
)

// =============================================================================
// ASSET STORE
// =============================================================================

func (q *queries) SaveAsset(ctx context.Context, a *depreciation.Asset) error {
	data, err := encode(a)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO assets (id, company, status, data_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company = excluded.company,
			status = excluded.status,
			data_json = excluded.data_json,
			updated_at = excluded.updated_at
	`, a.ID, a.Company, a.Status, data, q.timestamp())
	if err != nil {
		return fmt.Errorf("failed to save asset %s: %w", a.ID, err)
	}
	return nil
}

func (q *queries) GetAsset(ctx context.Context, id depreciation.AssetID) (*depreciation.Asset, error) {
	var a depreciation.Asset
	if err := q.getDocument(ctx, "asset", string(id), "SELECT data_json FROM assets WHERE id = ?", &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (q *queries) ListAssets(ctx context.Context) ([]*depreciation.Asset, error) {
	var out []*depreciation.Asset
	err := q.listDocuments(ctx, "SELECT data_json FROM assets ORDER BY id", func(data string) error {
		var a depreciation.Asset
		if err := decode(data, &a); err != nil {
			return err
		}
		out = append(out, &a)
		return nil
	})
	return out, err
}

// SaveSerialUnit stores the unit without its parent asset; GetSerialUnit
// joins it back.
func (q *queries) SaveSerialUnit(ctx context.Context, u *depreciation.SerialUnit) error {
	data, err := encode(u)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO serial_units (serial_no, asset_id, data_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(serial_no) DO UPDATE SET
			asset_id = excluded.asset_id,
			data_json = excluded.data_json,
			updated_at = excluded.updated_at
	`, u.SerialNo, u.AssetID, data, q.timestamp())
	if err != nil {
		return fmt.Errorf("failed to save serial no %s: %w", u.SerialNo, err)
	}
	return nil
}

func (q *queries) GetSerialUnit(ctx context.Context, serialNo string) (*depreciation.SerialUnit, error) {
	var u depreciation.SerialUnit
	if err := q.getDocument(ctx, "serial no", serialNo, "SELECT data_json FROM serial_units WHERE serial_no = ?", &u); err != nil {
		return nil, err
	}
	if err := q.attachAsset(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) ListSerialUnits(ctx context.Context, assetID depreciation.AssetID) ([]*depreciation.SerialUnit, error) {
	var out []*depreciation.SerialUnit
	err := q.listDocuments(ctx, "SELECT data_json FROM serial_units WHERE asset_id = ? ORDER BY serial_no", func(data string) error {
		var u depreciation.SerialUnit
		if err := decode(data, &u); err != nil {
			return err
		}
		out = append(out, &u)
		return nil
	}, assetID)
	if err != nil {
		return nil, err
	}
	for _, u := range out {
		if err := q.attachAsset(ctx, u); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (q *queries) attachAsset(ctx context.Context, u *depreciation.SerialUnit) error {
	a, err := q.GetAsset(ctx, u.AssetID)
	if depreciation.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	u.Asset = a
	return nil
}

// =============================================================================
// TEMPLATE STORE
// =============================================================================

func (q *queries) SaveTemplate(ctx context.Context, t depreciation.Template) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO templates (name, data_json, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data_json = excluded.data_json
	`, t.Name, data, q.timestamp())
	if err != nil {
		return fmt.Errorf("failed to save template %q: %w", t.Name, err)
	}
	return nil
}

func (q *queries) GetTemplate(ctx context.Context, name string) (depreciation.Template, error) {
	var t depreciation.Template
	err := q.getDocument(ctx, "template", name, "SELECT data_json FROM templates WHERE name = ?", &t)
	return t, err
}

func (q *queries) ListTemplates(ctx context.Context) ([]depreciation.Template, error) {
	var out []depreciation.Template
	err := q.listDocuments(ctx, "SELECT data_json FROM templates ORDER BY name", func(data string) error {
		var t depreciation.Template
		if err := decode(data, &t); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}
