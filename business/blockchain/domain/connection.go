// Package domain contains the core domain types for the blockchain context.
package domain

import "time"

// ConnectionState represents the state of a chain's RPC connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDegraded     ConnectionState = "degraded" // only the backup endpoint answers
)

// EndpointRole distinguishes a chain's primary and backup RPC endpoints.
type EndpointRole string

const (
	RolePrimary EndpointRole = "primary"
	RoleBackup  EndpointRole = "backup"
)

// ConnectionStatus contains detailed connection information for one chain.
type ConnectionStatus struct {
	Chain      string          `json:"chain"`
	State      ConnectionState `json:"state"`
	LastBlock  uint64          `json:"lastBlock"`
	LastUpdate time.Time       `json:"lastUpdate"`
	Failovers  int64           `json:"failovers"`
	HasBackup  bool            `json:"hasBackup"`
}
