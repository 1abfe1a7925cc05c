// Package upnp implements the small pieces of generic UPnP device/service
// framework needed by the control endpoint: device description XML types,
// SOAPACTION header parsing, UUID formatting, and the UPnP error code
// conventions used to translate Go errors into SOAP faults.
package upnp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SpecVersion is the UPnP device description spec version block.
type SpecVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

// Icon describes a single presentation icon in the device's iconList.
type Icon struct {
	Mimetype string `xml:"mimetype"`
	Width    int    `xml:"width"`
	Height   int    `xml:"height"`
	Depth    int    `xml:"depth"`
	URL      string `xml:"url"`
}

// Service is one entry of a device's serviceList.
type Service struct {
	ServiceType string `xml:"serviceType"`
	ServiceId   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

// Device is the root device element of the device description document.
type Device struct {
	DeviceType      string    `xml:"deviceType"`
	FriendlyName    string    `xml:"friendlyName"`
	Manufacturer    string    `xml:"manufacturer"`
	ModelName       string    `xml:"modelName"`
	UDN             string    `xml:"UDN"`
	VendorXML       string    `xml:",innerxml"`
	ServiceList     []Service `xml:"serviceList>service"`
	IconList        []Icon    `xml:"iconList>icon"`
	PresentationURL string    `xml:"presentationURL"`
}

// DeviceDesc is the full root XML document served at
// /connection/description.xml.
type DeviceDesc struct {
	XMLName     struct{}    `xml:"root"`
	NSDLNA      string      `xml:"xmlns:dlna,attr"`
	NSSEC       string      `xml:"xmlns:sec,attr"`
	Xmlns       string      `xml:"xmlns,attr"`
	SpecVersion SpecVersion `xml:"specVersion"`
	Device      Device      `xml:"device"`
}

// Variable is a single eventable state variable in a property-set.
type Variable struct {
	XMLName struct{}
	Value   string `xml:",chardata"`
}

// Property wraps one eventable Variable for UPnP eventing's property-set
// response (the stub SUBSCRIBE/NOTIFY bodies).
type Property struct {
	Variable Variable
}

// PropertySet is the e:propertyset element used by UPnP eventing.
type PropertySet struct {
	XMLName    struct{}   `xml:"e:propertyset"`
	Space      string     `xml:"xmlns:e,attr"`
	Properties []Property `xml:"e:property"`
}

// SoapAction identifies a single SOAP action invocation: which service URN
// and which action name within it.
type SoapAction struct {
	ServiceURN ServiceURN
	Action     string
}

// ServiceURN is a parsed "urn:schemas-upnp-org:service:X:N" service type.
type ServiceURN struct {
	Domain  string
	Type    string
	Version string
}

func (u ServiceURN) String() string {
	return fmt.Sprintf("urn:%s:service:%s:%s", u.Domain, u.Type, u.Version)
}

// ParseServiceType parses a service type URN of the form
// "urn:domain:service:type:version".
func ParseServiceType(s string) (u ServiceURN, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "urn" || parts[2] != "service" {
		err = fmt.Errorf("unrecognized service URN: %q", s)
		return
	}
	u.Domain = parts[1]
	u.Type = parts[3]
	u.Version = parts[4]
	return
}

// ParseActionHTTPHeader parses the SOAPACTION header value, of the form
// `"urn:service-urn#ActionName"`.
func ParseActionHTTPHeader(s string) (sa SoapAction, err error) {
	s = strings.Trim(s, `"`)
	hashIndex := strings.LastIndex(s, "#")
	if hashIndex < 0 {
		err = fmt.Errorf("bad SOAPACTION header: %q", s)
		return
	}
	sa.ServiceURN, err = ParseServiceType(s[:hashIndex])
	if err != nil {
		return
	}
	sa.Action = s[hashIndex+1:]
	return
}

// ParseCallbackURLs parses a SUBSCRIBE CALLBACK header of the form
// "<http://a/> <http://b/>".
func ParseCallbackURLs(header string) (urls []*url.URL) {
	for _, s := range strings.Fields(header) {
		s = strings.TrimPrefix(s, "<")
		s = strings.TrimSuffix(s, ">")
		if u, err := url.Parse(s); err == nil {
			urls = append(urls, u)
		}
	}
	return
}

// FormatUUID formats a 16-byte digest as a standard dashed UUID string.
func FormatUUID(buf []byte) string {
	if len(buf) > 16 {
		buf = buf[:16]
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", buf[:4], buf[4:6], buf[6:8], buf[8:10], buf[10:16])
}

// Standard UPnP control error codes (UPnP Device Architecture, Annex A).
const (
	InvalidActionErrorCode       = 401
	InvalidArgsErrorCode         = 402
	ActionFailedErrorCode        = 501
	ArgumentValueInvalidErrorCode = 600
	NoSuchObjectErrorCode        = 701
)

// Error is a UPnP action error: a numeric code plus description, the thing
// that gets marshaled into a SOAP fault's detail.
type Error struct {
	Code int
	Desc string
}

func (e *Error) Error() string {
	return fmt.Sprintf("UPnP error %d: %s", e.Code, e.Desc)
}

// Errorf builds an *Error with a formatted description.
func Errorf(code int, format string, a ...interface{}) error {
	return &Error{Code: code, Desc: fmt.Sprintf(format, a...)}
}

// ConvertError maps an arbitrary error to a UPnP *Error, defaulting to
// ActionFailed if it isn't already one.
func ConvertError(err error) *Error {
	var upnpErr *Error
	if errors.As(err, &upnpErr) {
		return upnpErr
	}
	return &Error{Code: ActionFailedErrorCode, Desc: err.Error()}
}
