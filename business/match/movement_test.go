package match

import (
	"testing"

	"github.com/sebastianknopf/avl2gtfsrt/business/model"
)

func TestIsMovementRequiresAtLeastTwoPositions(t *testing.T) {
	if IsMovement([]model.GnssPosition{{Latitude: 48.0, Longitude: 9.0}}) {
		t.Fatalf("expected no movement with a single position")
	}
}

func TestIsMovementDetectsLinearTravel(t *testing.T) {
	positions := []model.GnssPosition{
		{Latitude: 48.0, Longitude: 9.000},
		{Latitude: 48.0, Longitude: 9.002},
		{Latitude: 48.0, Longitude: 9.004},
	}
	if !IsMovement(positions) {
		t.Fatalf("expected movement for a straight-line travel path")
	}
}

func TestIsMovementRejectsJitterInPlace(t *testing.T) {
	positions := []model.GnssPosition{
		{Latitude: 48.00000, Longitude: 9.00000},
		{Latitude: 48.00030, Longitude: 9.00000},
		{Latitude: 48.00000, Longitude: 9.00030},
		{Latitude: 48.00030, Longitude: 9.00000},
	}
	if IsMovement(positions) {
		t.Fatalf("expected no movement for a path that jitters back and forth without net progress")
	}
}

func TestIsMovementRejectsShortDistance(t *testing.T) {
	positions := []model.GnssPosition{
		{Latitude: 48.0, Longitude: 9.0000},
		{Latitude: 48.0, Longitude: 9.0001},
	}
	if IsMovement(positions) {
		t.Fatalf("expected no movement below MinimumMovementMeters")
	}
}
