// Package registry implements Component C: the service registry holding
// namespaces' services, clusters, and instances, and emitting one change
// event per successful mutation to whatever Publisher is wired in.
package registry

import "time"

const DefaultCluster = "DEFAULT"

// Key identifies a service by its three-part coordinate.
type Key struct {
	Namespace string
	Group     string
	Name      string
}

// Instance is a single registered endpoint within a service's cluster.
type Instance struct {
	IP         string
	Port       int
	Cluster    string
	Weight     float64
	Healthy    bool
	Enabled    bool
	Ephemeral  bool
	Metadata   map[string]string
	InstanceID string
	SessionID  string // empty for persistent instances
}

func (i Instance) equal(o Instance) bool {
	if i.IP != o.IP || i.Port != o.Port || i.Cluster != o.Cluster ||
		i.Weight != o.Weight || i.Healthy != o.Healthy || i.Enabled != o.Enabled ||
		i.Ephemeral != o.Ephemeral || i.InstanceID != o.InstanceID {
		return false
	}
	if len(i.Metadata) != len(o.Metadata) {
		return false
	}
	for k, v := range i.Metadata {
		if o.Metadata[k] != v {
			return false
		}
	}
	return true
}

func cloneInstance(i Instance) Instance {
	c := i
	if i.Metadata != nil {
		c.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// ServiceInfo is the wire-level push unit: a filtered, revisioned snapshot
// of a service's hosts.
type ServiceInfo struct {
	Namespace   string
	Group       string
	Name        string
	Clusters    string // comma-joined cluster filter that produced this snapshot, "" for all
	Hosts       []Instance
	CacheMillis int64
	Revision    uint64
}

type tombstone struct {
	emptyAt time.Time
}
