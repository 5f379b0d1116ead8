package geo

import "testing"

func TestDecodePolylineKnownVector(t *testing.T) {
	// Google's canonical example: "_p~iF~ps|U_ulLnnqC_mqNvxq`@"
	// decodes to (38.5, -120.2), (40.7, -120.95), (43.252, -126.453).
	points := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")

	want := []LatLng{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	}
	if len(points) != len(want) {
		t.Fatalf("decoded %d points, want %d", len(points), len(want))
	}
	for i, p := range points {
		if diff := p.Latitude - want[i].Latitude; diff > 1e-5 || diff < -1e-5 {
			t.Errorf("point %d latitude = %v, want %v", i, p.Latitude, want[i].Latitude)
		}
		if diff := p.Longitude - want[i].Longitude; diff > 1e-5 || diff < -1e-5 {
			t.Errorf("point %d longitude = %v, want %v", i, p.Longitude, want[i].Longitude)
		}
	}
}

func TestEncodeDecodePolylineRoundTrips(t *testing.T) {
	original := []LatLng{
		{Latitude: 48.7758, Longitude: 9.1829},
		{Latitude: 48.7800, Longitude: 9.1900},
		{Latitude: 48.7850, Longitude: 9.2000},
	}
	encoded := EncodePolyline(original)
	decoded := DecodePolyline(encoded)

	if len(decoded) != len(original) {
		t.Fatalf("decoded %d points, want %d", len(decoded), len(original))
	}
	for i, p := range decoded {
		if diff := p.Latitude - original[i].Latitude; diff > 1e-5 || diff < -1e-5 {
			t.Errorf("point %d latitude = %v, want %v", i, p.Latitude, original[i].Latitude)
		}
		if diff := p.Longitude - original[i].Longitude; diff > 1e-5 || diff < -1e-5 {
			t.Errorf("point %d longitude = %v, want %v", i, p.Longitude, original[i].Longitude)
		}
	}
}

func TestDecodePolylineEmptyInput(t *testing.T) {
	if points := DecodePolyline(""); points != nil {
		t.Fatalf("expected nil for empty input, got %v", points)
	}
}

func TestShapeLineProjectAlongStraightSegment(t *testing.T) {
	line := []LatLng{
		{Latitude: 48.0, Longitude: 9.0},
		{Latitude: 48.0, Longitude: 9.01},
	}
	shape := NewShapeLine(EncodePolyline(line))
	if shape == nil {
		t.Fatal("expected a non-nil shape")
	}

	midpoint := Project(48.0, 9.005)
	progress, distance := shape.Project(midpoint)

	if distance > 1.0 {
		t.Errorf("expected the midpoint to lie almost exactly on the shape, got distance %v", distance)
	}
	halfLength := shape.Length() / 2
	if diff := progress - halfLength; diff > 1.0 || diff < -1.0 {
		t.Errorf("progress = %v, want ~%v", progress, halfLength)
	}
}

func TestShapeLineRejectsDegenerateInput(t *testing.T) {
	if shape := NewShapeLine(EncodePolyline([]LatLng{{Latitude: 48.0, Longitude: 9.0}})); shape != nil {
		t.Fatalf("expected nil shape for a single-point polyline")
	}
}
