// Package mqtt publishes knxnetd output to an MQTT broker.
//
// The daemon only publishes: bus telegrams, client state changes, errors and
// statistics snapshots, under the tree described by Topics. A retained
// status message with a matching Last Will lets consumers see when the
// daemon goes away.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().Telegram(address.MustGroup(1, 2, 3))
//	err = client.PublishDefault(topic, payload, false)
//
// TLS should be enabled for any broker outside the local host.
package mqtt
