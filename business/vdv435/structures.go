// Package vdv435 implements the wire structures of the VDV-435 / IoM
// message set this system consumes and produces: technical vehicle log-on
// and log-off request/response pairs, and GNSS physical position reports.
// Structures round-trip via encoding/xml, mirroring the inbound message
// bus's XML payloads.
package vdv435

import (
	"encoding/xml"
	"time"
)

// VehicleRef identifies a vehicle in NeTEx's vehicle reference vocabulary.
type VehicleRef struct {
	Version string `xml:"version,attr"`
	Value   string `xml:",chardata"`
}

// CommonResponseCode values used across response structures.
const (
	ResponseCodeOk                 = "ok"
	ResponseCodeMessageUnderstood   = "messageUnderstood"
)

// Technical log-on/off response error codes (§6).
const (
	LogOnErrorDoubleLogOn        = "doubleLogOn"
	LogOffErrorVehicleNotLoggedOn = "vehicleNotLoggedOn"
)

// TechnicalVehicleLogOnRequest is sent by a vehicle requesting to start
// reporting AVL data.
type TechnicalVehicleLogOnRequest struct {
	XMLName    xml.Name   `xml:"TechnicalVehicleLogOnRequest"`
	Version    string     `xml:"version,attr"`
	Timestamp  string     `xml:"Timestamp"`
	MessageId  string     `xml:"MessageId"`
	VehicleRef VehicleRef `xml:"VehicleRef"`
}

// TechnicalVehicleLogOnResponseData signals a successful log-on.
type TechnicalVehicleLogOnResponseData struct{}

// TechnicalVehicleLogOnResponseError carries a failure code (§6,
// "doubleLogOn").
type TechnicalVehicleLogOnResponseError struct {
	ResponseCode string `xml:"TechnicalVehicleLogOnResponseCode"`
}

// TechnicalVehicleLogOnResponse replies to a TechnicalVehicleLogOnRequest
// with either ResponseData or ResponseError, never both.
type TechnicalVehicleLogOnResponse struct {
	XMLName              xml.Name                            `xml:"TechnicalVehicleLogOnResponse"`
	Version               string                              `xml:"version,attr"`
	Timestamp              string                              `xml:"Timestamp"`
	MessageId              string                              `xml:"MessageId"`
	CommonResponseCode     string                              `xml:"CommonResponseCode"`
	ResponseData           *TechnicalVehicleLogOnResponseData  `xml:"TechnicalVehicleLogOnResponseData,omitempty"`
	ResponseError          *TechnicalVehicleLogOnResponseError `xml:"TechnicalVehicleLogOnResponseError,omitempty"`
}

// TechnicalVehicleLogOffRequest is sent by a vehicle ending its session.
type TechnicalVehicleLogOffRequest struct {
	XMLName    xml.Name   `xml:"TechnicalVehicleLogOffRequest"`
	Version    string     `xml:"version,attr"`
	Timestamp  string     `xml:"Timestamp"`
	MessageId  string     `xml:"MessageId"`
	VehicleRef VehicleRef `xml:"VehicleRef"`
}

// TechnicalVehicleLogOffResponseData signals a successful log-off.
type TechnicalVehicleLogOffResponseData struct{}

// TechnicalVehicleLogOffResponseError carries a failure code (§6,
// "vehicleNotLoggedOn").
type TechnicalVehicleLogOffResponseError struct {
	ResponseCode string `xml:"TechnicalVehicleLogOffResponseCode"`
}

// TechnicalVehicleLogOffResponse replies to a TechnicalVehicleLogOffRequest.
type TechnicalVehicleLogOffResponse struct {
	XMLName            xml.Name                             `xml:"TechnicalVehicleLogOffResponse"`
	Version             string                               `xml:"version,attr"`
	Timestamp            string                               `xml:"Timestamp"`
	MessageId            string                               `xml:"MessageId"`
	CommonResponseCode   string                               `xml:"CommonResponseCode"`
	ResponseData         *TechnicalVehicleLogOffResponseData  `xml:"TechnicalVehicleLogOffResponseData,omitempty"`
	ResponseError        *TechnicalVehicleLogOffResponseError `xml:"TechnicalVehicleLogOffResponseError,omitempty"`
}

// WGS84PhysicalPosition is a coordinate pair in WGS-84 degrees.
type WGS84PhysicalPosition struct {
	Latitude  float64 `xml:"Latitude"`
	Longitude float64 `xml:"Longitude"`
}

// GnssPhysicalPosition wraps the coordinate under the GNSS-specific element
// name the wire format uses.
type GnssPhysicalPosition struct {
	WGS84PhysicalPosition WGS84PhysicalPosition `xml:"WGS84PhysicalPosition"`
}

// GnssPhysicalPositionData is one AVL sample published by a vehicle's
// onboard unit, retained (QoS 0) on the physical-position topic.
type GnssPhysicalPositionData struct {
	XMLName                xml.Name             `xml:"GnssPhysicalPositionData"`
	Version                 string               `xml:"version,attr"`
	PublisherId             string               `xml:"PublisherId"`
	TimestampOfMeasurement  string               `xml:"TimestampOfMeasurement"`
	GnssPhysicalPosition    GnssPhysicalPosition `xml:"GnssPhysicalPosition"`
}

// MeasurementTime parses TimestampOfMeasurement as an ISO-8601 instant.
func (d *GnssPhysicalPositionData) MeasurementTime() (time.Time, error) {
	return time.Parse(time.RFC3339, d.TimestampOfMeasurement)
}

// NewTechnicalVehicleLogOnResponseData builds a successful log-on response.
func NewTechnicalVehicleLogOnResponseData(messageId string) TechnicalVehicleLogOnResponse {
	return TechnicalVehicleLogOnResponse{
		Version:            "1.0",
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		MessageId:          messageId,
		CommonResponseCode: ResponseCodeOk,
		ResponseData:       &TechnicalVehicleLogOnResponseData{},
	}
}

// NewTechnicalVehicleLogOnResponseError builds a failed log-on response
// carrying responseCode (e.g. LogOnErrorDoubleLogOn).
func NewTechnicalVehicleLogOnResponseError(messageId, responseCode string) TechnicalVehicleLogOnResponse {
	return TechnicalVehicleLogOnResponse{
		Version:            "1.0",
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		MessageId:          messageId,
		CommonResponseCode: ResponseCodeMessageUnderstood,
		ResponseError:      &TechnicalVehicleLogOnResponseError{ResponseCode: responseCode},
	}
}

// NewTechnicalVehicleLogOffResponseData builds a successful log-off response.
func NewTechnicalVehicleLogOffResponseData(messageId string) TechnicalVehicleLogOffResponse {
	return TechnicalVehicleLogOffResponse{
		Version:            "1.0",
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		MessageId:          messageId,
		CommonResponseCode: ResponseCodeOk,
		ResponseData:       &TechnicalVehicleLogOffResponseData{},
	}
}

// NewTechnicalVehicleLogOffResponseError builds a failed log-off response
// carrying responseCode (e.g. LogOffErrorVehicleNotLoggedOn).
func NewTechnicalVehicleLogOffResponseError(messageId, responseCode string) TechnicalVehicleLogOffResponse {
	return TechnicalVehicleLogOffResponse{
		Version:            "1.0",
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		MessageId:          messageId,
		CommonResponseCode: ResponseCodeMessageUnderstood,
		ResponseError:      &TechnicalVehicleLogOffResponseError{ResponseCode: responseCode},
	}
}
