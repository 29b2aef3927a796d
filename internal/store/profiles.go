package store

import (
	"context"
	"encoding/json"

	"github.com/chargepoint/ocpp16cp/internal/ocpp/types"
)

// ProfileRepo persists installed smart-charging profiles, grounded on
// SmartChargingManager's ProfileDatabase member: one row per profile id,
// the schedule stored as JSON since its shape is too variable (period
// counts, optional fields) for a flat column layout.
type ProfileRepo struct {
	db *DB
}

// NewProfileRepo creates the table if absent.
func NewProfileRepo(db *DB) (*ProfileRepo, error) {
	if _, err := db.exec(context.Background(), `CREATE TABLE IF NOT EXISTS charging_profiles (
		profile_id INTEGER PRIMARY KEY,
		connector_id INTEGER NOT NULL,
		purpose INTEGER NOT NULL,
		stack_level INTEGER NOT NULL,
		transaction_id INTEGER,
		data TEXT NOT NULL
	)`); err != nil {
		return nil, mapError("create charging_profiles", err)
	}
	return &ProfileRepo{db: db}, nil
}

// Put installs or replaces profile at connectorId.
func (r *ProfileRepo) Put(ctx context.Context, connectorId int, profile types.ChargingProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	var txID any
	if profile.TransactionId != nil {
		txID = *profile.TransactionId
	}
	_, err = r.db.exec(ctx, `INSERT INTO charging_profiles (profile_id, connector_id, purpose, stack_level, transaction_id, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET connector_id=excluded.connector_id, purpose=excluded.purpose,
			stack_level=excluded.stack_level, transaction_id=excluded.transaction_id, data=excluded.data`,
		profile.ChargingProfileId, connectorId, profileOrdinal(profile.ChargingProfilePurpose), profile.StackLevel, txID, string(data))
	return mapError("upsert charging_profiles", err)
}

// DeleteByID removes a single profile, returning whether it existed.
func (r *ProfileRepo) DeleteByID(ctx context.Context, profileID int) (bool, error) {
	res, err := r.db.exec(ctx, `DELETE FROM charging_profiles WHERE profile_id = ?`, profileID)
	if err != nil {
		return false, mapError("delete charging_profiles by id", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteMatching removes every profile matching the non-nil filters,
// returning the count removed — used by ClearChargingProfile.req when no
// explicit id is given.
func (r *ProfileRepo) DeleteMatching(ctx context.Context, connectorId *int, purpose *types.ChargingProfilePurpose, stackLevel *int) (int, error) {
	query := `DELETE FROM charging_profiles WHERE 1=1`
	var args []any
	if connectorId != nil {
		query += ` AND connector_id = ?`
		args = append(args, *connectorId)
	}
	if purpose != nil {
		query += ` AND purpose = ?`
		args = append(args, profileOrdinal(*purpose))
	}
	if stackLevel != nil {
		query += ` AND stack_level = ?`
		args = append(args, *stackLevel)
	}
	res, err := r.db.exec(ctx, query, args...)
	if err != nil {
		return 0, mapError("delete charging_profiles matching filter", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// LoadAll returns every persisted profile keyed by its connector id, for
// rebuilding the in-memory profile store at startup.
func (r *ProfileRepo) LoadAll(ctx context.Context) (map[int][]types.ChargingProfile, error) {
	rows, err := r.db.query(ctx, `SELECT connector_id, data FROM charging_profiles`)
	if err != nil {
		return nil, mapError("load charging_profiles", err)
	}
	defer rows.Close()

	out := make(map[int][]types.ChargingProfile)
	for rows.Next() {
		var connectorId int
		var data string
		if err := rows.Scan(&connectorId, &data); err != nil {
			return nil, mapError("scan charging_profiles row", err)
		}
		var p types.ChargingProfile
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, mapError("decode charging_profiles row", err)
		}
		out[connectorId] = append(out[connectorId], p)
	}
	return out, rows.Err()
}

func profileOrdinal(p types.ChargingProfilePurpose) int {
	switch p {
	case types.ChargePointMaxProfile:
		return 0
	case types.TxDefaultProfile:
		return 1
	case types.TxProfile:
		return 2
	default:
		return -1
	}
}
