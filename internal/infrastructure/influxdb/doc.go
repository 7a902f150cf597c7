// Package influxdb records KNXnet/IP traffic history in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library: connection check with
// a ping, a non-blocking batched write API, and helpers for the three
// measurements knxnetd produces (telegrams, connection state changes and
// statistics snapshots).
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteStatistics(knx.Stats())
//
// Write errors are delivered asynchronously through SetOnError and keep
// HealthCheck failing for two flush intervals.
package influxdb
