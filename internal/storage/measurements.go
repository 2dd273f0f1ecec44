package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const createMeasurementsTable = `
	CREATE TABLE IF NOT EXISTS measurements (
		id          UUID PRIMARY KEY,
		session_id  UUID NOT NULL,
		set_num     SMALLINT NOT NULL,
		set_char    TEXT NOT NULL,
		ch_num      SMALLINT NOT NULL,
		ch_type     SMALLINT NOT NULL,
		freq        DOUBLE PRECISION,
		tau_int     DOUBLE PRECISION,
		i_exc       DOUBLE PRECISION,
		v_exc       DOUBLE PRECISION,
		snr         DOUBLE PRECISION,
		v_noise     DOUBLE PRECISION,
		p_diss      DOUBLE PRECISION,
		z_type      TEXT NOT NULL,
		z_val       DOUBLE PRECISION NOT NULL,
		z_unit      TEXT NOT NULL,
		instrument_time DOUBLE PRECISION,
		sequence    BIGINT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL
	)
`

const insertMeasurement = `
	INSERT INTO measurements (
		id, session_id, set_num, set_char, ch_num, ch_type,
		freq, tau_int, i_exc, v_exc, snr, v_noise, p_diss,
		z_type, z_val, z_unit, instrument_time, sequence, received_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
`

// PostgresRecorder stores measurements in the measurements table.
type PostgresRecorder struct {
	client *PostgresClient
}

// NewPostgresRecorder creates the measurements table when missing.
func NewPostgresRecorder(ctx context.Context, client *PostgresClient) (*PostgresRecorder, error) {
	if _, err := client.pool.Exec(ctx, createMeasurementsTable); err != nil {
		return nil, fmt.Errorf("failed to create measurements table: %w", err)
	}
	return &PostgresRecorder{client: client}, nil
}

func (r *PostgresRecorder) Record(ctx context.Context, rec Record) error {
	if _, err := r.client.pool.Exec(ctx, insertMeasurement, measurementArgs(uuid.New(), rec)...); err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Close() error {
	return r.client.Close()
}

func measurementArgs(id uuid.UUID, rec Record) []any {
	m := rec.Measurement
	return []any{
		id, rec.SessionID, rec.Set.Index, rec.Set.Char, int16(m.ChNum), int16(m.ChType),
		m.Freq, m.TauInt, m.IExc, m.VExc, m.SNR, m.VNoise, m.PDiss,
		m.ZType, m.ZVal, m.ZUnit, m.Timestamp, int64(rec.Sequence), rec.ReceivedAt,
	}
}
