// Package soap implements the minimal SOAP 1.1 envelope handling needed by
// the UPnP control endpoint: decoding an incoming action request body and
// encoding a fault when a service handler fails.
package soap

import "encoding/xml"

// Envelope is the outer s:Envelope/s:Body wrapper of a SOAP request.
type Envelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    struct {
		Action []byte `xml:",innerxml"`
	} `xml:"Body"`
}

// Arg is a single named response argument, rendered as <Name>Value</Name>.
type Arg struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// UPnPError is the body of a SOAP fault raised by a UPnP service action.
type UPnPError struct {
	XMLName     xml.Name `xml:"urn:schemas-upnp-org:control-1-0 UPnPError"`
	Code        int      `xml:"errorCode"`
	Description string   `xml:"errorDescription"`
}

// Fault is a SOAP 1.1 Fault element wrapping a UPnPError detail.
type Fault struct {
	XMLName     xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Fault"`
	FaultCode   string   `xml:"faultcode"`
	FaultString string   `xml:"faultstring"`
	Detail      struct {
		UPnPError UPnPError
	} `xml:"detail"`
}

// NewFault builds a Fault carrying the given UPnP error code/description
// under the conventional "UPnPError" faultstring.
func NewFault(faultString string, upnpError UPnPError) Fault {
	f := Fault{
		FaultCode:   "s:Client",
		FaultString: faultString,
	}
	f.Detail.UPnPError = upnpError
	return f
}
