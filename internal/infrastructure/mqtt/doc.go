// Package mqtt provides the MQTT client behind the bridge's state mirror.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees, retained for state topics
//   - Subscriptions that survive reconnects
//   - Last Will and Testament (LWT) on <prefix>/status
//
// Datagram subscribers remain the primary interface. MQTT lets home
// automation systems see the same property changes without speaking
// the datagram protocol, and lets them send assignment lists.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishRetained(topics.State("bulb-1", "power"), []byte("true"))
package mqtt
