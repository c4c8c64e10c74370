// Package config loads the lightbridge YAML file, applies
// LIGHTBRIDGE_<SECTION>_<KEY> environment overrides and validates the
// result. Every problem found by Validate is reported at once.
//
// The file may hold Tuya local keys and MQTT credentials. Keep it 0600, or
// use the database roster so keys live only in the SQLite file.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	addr := cfg.BridgeAddress()
package config
