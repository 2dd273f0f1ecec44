package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/KevinKickass/ImpedanceBridgeCore/internal/config"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const influxPingTimeout = 5 * time.Second

var ErrInfluxUnhealthy = errors.New("influxdb: server not healthy")

// InfluxRecorder writes one point per measurement to an InfluxDB bucket.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInfluxRecorder(ctx context.Context, cfg config.InfluxDBConfig) (*InfluxRecorder, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token())

	pingCtx, cancel := context.WithTimeout(ctx, influxPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, ErrInfluxUnhealthy
	}

	return &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

func (r *InfluxRecorder) Record(ctx context.Context, rec Record) error {
	if err := r.writeAPI.WritePoint(ctx, measurementPoint(rec)); err != nil {
		return fmt.Errorf("failed to write point: %w", err)
	}
	return nil
}

func (r *InfluxRecorder) Close() error {
	r.client.Close()
	return nil
}

func measurementPoint(rec Record) *write.Point {
	m := rec.Measurement
	return write.NewPoint(
		"impedance",
		map[string]string{
			"session": rec.SessionID.String(),
			"set":     rec.Set.Char,
			"channel": strconv.Itoa(int(m.ChNum)),
			"z_type":  m.ZType,
			"z_unit":  m.ZUnit,
		},
		map[string]interface{}{
			"z_val":    m.ZVal,
			"freq":     m.Freq,
			"tau_int":  m.TauInt,
			"i_exc":    m.IExc,
			"v_exc":    m.VExc,
			"snr":      m.SNR,
			"v_noise":  m.VNoise,
			"p_diss":   m.PDiss,
			"sequence": int64(rec.Sequence),
		},
		rec.ReceivedAt,
	)
}
