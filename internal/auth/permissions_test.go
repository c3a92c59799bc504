package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPermissionTable(t *testing.T) {
	table := DefaultPermissionTable()

	assert.ElementsMatch(t, AllStreams(), table.StreamsFor("Administrator"))
	assert.Equal(t, []string{StreamEquipmentStatus}, table.StreamsFor("Maintenance Technician"))
	assert.Equal(t, []string{StreamProductionEvents, StreamQualityMetrics}, table.StreamsFor("Director"))
	assert.Len(t, table.Roles(), 7)
}

func TestUnknownRoleGrantsNothing(t *testing.T) {
	table := DefaultPermissionTable()
	streams := table.StreamsFor("Janitor")
	assert.NotNil(t, streams)
	assert.Empty(t, streams)
}

func TestRoleNamesAreCaseInsensitive(t *testing.T) {
	table := DefaultPermissionTable()
	assert.Equal(t, table.StreamsFor("Plant Manager"), table.StreamsFor("  plant manager "))
}

func TestNewPermissionTableNormalizes(t *testing.T) {
	table := NewPermissionTable(map[string][]string{
		"Viewer": {"a", " a ", "", "b"},
		"   ":    {"c"},
	})
	assert.Equal(t, []string{"a", "b"}, table.StreamsFor("viewer"))
	assert.Equal(t, []string{"viewer"}, table.Roles())
}

func TestStreamsForReturnsCopy(t *testing.T) {
	table := DefaultPermissionTable()
	streams := table.StreamsFor("Director")
	streams[0] = "tampered"
	assert.Equal(t, StreamProductionEvents, table.StreamsFor("Director")[0])
}
