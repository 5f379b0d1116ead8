package vdv435

import (
	"encoding/xml"
	"testing"
)

func TestTechnicalVehicleLogOnRequestRoundTrips(t *testing.T) {
	request := TechnicalVehicleLogOnRequest{
		Version:   "1.0",
		Timestamp: "2026-07-30T08:00:00Z",
		MessageId: "msg-1",
		VehicleRef: VehicleRef{
			Version: "1.0",
			Value:   "vehicle-42",
		},
	}

	payload, err := xml.Marshal(request)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}

	var decoded TechnicalVehicleLogOnRequest
	if err := xml.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}

	if decoded.XMLName.Local != "TechnicalVehicleLogOnRequest" {
		t.Fatalf("XMLName = %q, want TechnicalVehicleLogOnRequest", decoded.XMLName.Local)
	}
	if decoded.MessageId != "msg-1" {
		t.Fatalf("MessageId = %q, want msg-1", decoded.MessageId)
	}
	if decoded.VehicleRef.Value != "vehicle-42" {
		t.Fatalf("VehicleRef.Value = %q, want vehicle-42", decoded.VehicleRef.Value)
	}
}

func TestTechnicalVehicleLogOnResponseErrorCarriesResponseCode(t *testing.T) {
	response := NewTechnicalVehicleLogOnResponseError("msg-2", LogOnErrorDoubleLogOn)

	payload, err := xml.Marshal(response)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}

	var decoded TechnicalVehicleLogOnResponse
	if err := xml.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}

	if decoded.ResponseData != nil {
		t.Fatalf("expected no ResponseData on an error response")
	}
	if decoded.ResponseError == nil || decoded.ResponseError.ResponseCode != LogOnErrorDoubleLogOn {
		t.Fatalf("expected ResponseError with code %q, got %+v", LogOnErrorDoubleLogOn, decoded.ResponseError)
	}
}

func TestGnssPhysicalPositionDataParsesMeasurementTime(t *testing.T) {
	payload := []byte(`<GnssPhysicalPositionData version="1.0">
		<PublisherId>unit-1</PublisherId>
		<TimestampOfMeasurement>2026-07-30T08:15:30Z</TimestampOfMeasurement>
		<GnssPhysicalPosition>
			<WGS84PhysicalPosition>
				<Latitude>48.7758</Latitude>
				<Longitude>9.1829</Longitude>
			</WGS84PhysicalPosition>
		</GnssPhysicalPosition>
	</GnssPhysicalPositionData>`)

	var data GnssPhysicalPositionData
	if err := xml.Unmarshal(payload, &data); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}

	measured, err := data.MeasurementTime()
	if err != nil {
		t.Fatalf("MeasurementTime: %s", err)
	}
	if measured.Hour() != 8 || measured.Minute() != 15 {
		t.Fatalf("MeasurementTime = %v, want 08:15", measured)
	}
	if data.GnssPhysicalPosition.WGS84PhysicalPosition.Latitude != 48.7758 {
		t.Fatalf("Latitude = %v, want 48.7758", data.GnssPhysicalPosition.WGS84PhysicalPosition.Latitude)
	}
}
