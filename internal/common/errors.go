package common

import "fmt"

const (
	// ReasonCannotConnect is reported when the master or default node cannot be reached.
	ReasonCannotConnect = "Cannot connect to the database"
	// ReasonNotConnected is reported when a database is requested before any name was configured.
	ReasonNotConnected = "Not connected to the database"
)

// ConfigError is returned for general configuration loading and validation errors.
type ConfigError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error during '%s': %s", e.Op, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ConnectionError is returned when the topology cannot be built or no database was selected.
// The message is the bare reason; the driver failure, if any, is kept behind Unwrap.
type ConnectionError struct {
	Address string
	Reason  string
	Err     error
}

func (e *ConnectionError) Error() string {
	return e.Reason
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ReplicaError records a replica node that was excluded from the topology.
type ReplicaError struct {
	Index   int
	Address string
	Err     error
}

func (e *ReplicaError) Error() string {
	return fmt.Sprintf("replica %d at '%s' excluded: %v", e.Index, e.Address, e.Err)
}

func (e *ReplicaError) Unwrap() error {
	return e.Err
}

// AuthError is returned when a node was reachable but rejected the credentials.
type AuthError struct {
	Address  string
	Database string
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication of '%s' on database '%s' failed at %s: %v", e.Username, e.Database, e.Address, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ReconfigureError is returned when Connect is asked to change an already established handle.
type ReconfigureError struct {
	Op     string
	Reason string
}

func (e *ReconfigureError) Error() string {
	return fmt.Sprintf("cannot reconfigure during '%s': %s", e.Op, e.Reason)
}

// FileIOError is returned for file I/O related errors.
type FileIOError struct {
	Op     string
	Reason string
	Err    error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("file I/O error during '%s': %s", e.Op, e.Reason)
}

func (e *FileIOError) Unwrap() error {
	return e.Err
}
