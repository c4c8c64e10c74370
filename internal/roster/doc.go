// Package roster supplies the device declarations the bridge binds on
// startup and on every reload.
//
// Two sources exist: ConfigSource returns the devices list of the config
// file, SQLiteSource reads enabled rows of the devices table. Both return
// declarations in a stable order so resource ids stay deterministic.
package roster
