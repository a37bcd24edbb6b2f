package cluster

import "github.com/google/uuid"

// --------------------------------------------------------------------------
// Cluster Metadata Snapshots
// --------------------------------------------------------------------------

// NamespaceMetadata describes one logical table.
type NamespaceMetadata struct {
	Name       string    `json:"name"`
	Database   uuid.UUID `json:"database"`
	PrimaryKey string    `json:"primary_key"`
	CPUShards  int       `json:"cpu_shards"`
}

// NamespacesMetadata is the namespace slice of the cluster metadata.
type NamespacesMetadata struct {
	Namespaces map[uuid.UUID]NamespaceMetadata `json:"namespaces"`
}

// DatabaseMetadata describes one database.
type DatabaseMetadata struct {
	Name string `json:"name"`
}

// DatabasesMetadata is the database slice of the cluster metadata.
type DatabasesMetadata struct {
	Databases map[uuid.UUID]DatabaseMetadata `json:"databases"`
}

// ClusterMetadata is the full metadata snapshot replicated through the
// cluster layer. This module only projects it per worker; how it propagates
// between machines is not our concern.
type ClusterMetadata struct {
	Namespaces NamespacesMetadata `json:"namespaces"`
	Databases  DatabasesMetadata  `json:"databases"`
}
