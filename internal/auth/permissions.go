package auth

import (
	"sort"
	"strings"
)

// Stream names published by the scheduling application.
const (
	StreamProductionEvents    = "production_events"
	StreamEquipmentStatus     = "equipment_status"
	StreamQualityMetrics      = "quality_metrics"
	StreamResourceUtilization = "resource_utilization"
	StreamJobUpdates          = "job_updates"
)

// AllStreams lists every stream known to the default permission table.
func AllStreams() []string {
	return []string{
		StreamProductionEvents,
		StreamEquipmentStatus,
		StreamQualityMetrics,
		StreamResourceUtilization,
		StreamJobUpdates,
	}
}

// PermissionTable maps a role name to the streams it may read. Role names are
// matched case-insensitively.
type PermissionTable struct {
	roles map[string][]string
}

func NewPermissionTable(roleStreams map[string][]string) PermissionTable {
	roles := make(map[string][]string, len(roleStreams))
	for role, streams := range roleStreams {
		key := normalizeRole(role)
		if key == "" {
			continue
		}
		seen := make(map[string]struct{}, len(streams))
		for _, s := range streams {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			roles[key] = append(roles[key], s)
		}
	}
	return PermissionTable{roles: roles}
}

// DefaultPermissionTable is the built-in role to stream mapping.
func DefaultPermissionTable() PermissionTable {
	return NewPermissionTable(map[string][]string{
		"Administrator": AllStreams(),
		"Plant Manager": {
			StreamProductionEvents, StreamEquipmentStatus, StreamQualityMetrics, StreamResourceUtilization,
		},
		"Production Scheduler": {
			StreamProductionEvents, StreamJobUpdates, StreamResourceUtilization,
		},
		"Shop Floor Operations": {
			StreamProductionEvents, StreamEquipmentStatus, StreamJobUpdates,
		},
		"Maintenance Technician": {StreamEquipmentStatus},
		"Data Analyst": {
			StreamProductionEvents, StreamQualityMetrics, StreamResourceUtilization,
		},
		"Director": {StreamProductionEvents, StreamQualityMetrics},
	})
}

// StreamsFor returns the streams granted to role. Unknown roles get nothing.
func (t PermissionTable) StreamsFor(role string) []string {
	streams := t.roles[normalizeRole(role)]
	out := make([]string, len(streams))
	copy(out, streams)
	return out
}

// Roles returns the normalized role names in the table, sorted.
func (t PermissionTable) Roles() []string {
	out := make([]string, 0, len(t.roles))
	for role := range t.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
