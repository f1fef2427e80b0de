// Package config handles configuration loading for wisp-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WISP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/wisp/gateway.yaml
//  3. ~/.config/wisp/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	workflow:
//	  webhook_url: "${WISP_WORKFLOW_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	workflow:
//	  dispatch_timeout: "10s"
//	correlation:
//	  ttl: "5m"
//	  sweep_interval: "1m"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/wisp/gateway.db"
//
// Workflow engine:
//
//	workflow:
//	  webhook_url: "http://localhost:5678/webhook/chat"
//	  dispatch_timeout: "10s"
//
// Pending-correlation lifetimes:
//
//	correlation:
//	  ttl: "5m"
//	  sweep_interval: "1m"
//	  max_pending: 100000
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
