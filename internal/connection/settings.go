package connection

import (
	"mongoconn/internal/config"
	"mongoconn/internal/mongo"
)

// BuildNodeSettings normalizes a raw node configuration, applying defaults.
// Replicas are read-eligible unless SLAVE_OKAY says otherwise; every other
// node is primary-only unless SLAVE_OKAY is set explicitly.
func BuildNodeSettings(node config.NodeConfig, isReplica bool) mongo.NodeSettings {
	s := mongo.NodeSettings{
		Host:     node.Host,
		Port:     node.Port,
		PoolSize: node.PoolSize,
	}
	if s.Host == "" {
		s.Host = mongo.DefaultHost
	}
	if s.Port == 0 {
		s.Port = mongo.DefaultPort
	}
	if node.Timeout != nil {
		s.Timeout = *node.Timeout
	}
	if node.NetworkTimeout != nil {
		s.NetworkTimeout = *node.NetworkTimeout
	}
	if node.SlaveOkay == nil {
		s.SlaveOkay = isReplica
	} else {
		s.SlaveOkay = *node.SlaveOkay
	}
	return s
}
