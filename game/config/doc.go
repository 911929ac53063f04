// Package config provides configuration management for the drawing lobby server.
//
// The config package handles:
//   - Built-in defaults for every setting
//   - Loading overrides from a JSON file
//   - Writing the effective configuration back to disk
//   - Validation of the final configuration
//
// Configuration Format:
//
// Settings are stored as a single JSON document:
//
//	{
//	  "host": "0.0.0.0",
//	  "port": 8080,
//	  "room_id": "global",
//	  "max_nickname_length": 16,
//	  "flagged_nickname": "DOF",
//	  "evict_empty_rooms": false,
//	  "send_buffer_size": 256,
//	  "store": {"backend": "redis", "redis_addr": "localhost:6379"}
//	}
//
// Fields missing from the file keep their defaults. The command line layers
// flags and environment variables on top of the file (see main.go).
package config
