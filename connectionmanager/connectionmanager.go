// Package connectionmanager implements UPnPDescriptor and the
// ConnectionManager service (component 4.E): the device description
// document, the SCPDs of all three advertised services, and
// ConnectionManager's own tiny action
// set (stream connections are not really negotiated — everything is plain
// HTTP GET).
package connectionmanager

import (
	"crypto/rand"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zeroexploit/slms/upnp"
)

// Service implements the ConnectionManager:1 action set. Every action
// either reports the single fixed HTTP-GET profile or accepts a
// connection/teardown request as a no-op, per spec §9 ("advertised but
// no-op").
type Service struct{}

// Subscribe always accepts: ConnectionManager has nothing that actually
// changes, so eventing is a pure formality here.
func (s *Service) Subscribe(callback []*url.URL, timeoutSeconds int) (sid string, actualTimeout int, err error) {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 1800
	}
	return "uuid:" + newID(), timeoutSeconds, nil
}

func (s *Service) Unsubscribe(sid string) error { return nil }

func newID() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return upnp.FormatUUID(buf[:])
}

func (s *Service) Handle(action string, argsXML []byte, r *http.Request) ([][2]string, error) {
	switch action {
	case "GetProtocolInfo":
		return [][2]string{
			{"Source", "http-get:*:*:*"},
			{"Sink", ""},
		}, nil
	case "GetCurrentConnectionIDs":
		return [][2]string{{"ConnectionIDs", "0"}}, nil
	case "GetCurrentConnectionInfo":
		return [][2]string{
			{"RcsID", "-1"},
			{"AVTransportID", "-1"},
			{"ProtocolInfo", ""},
			{"PeerConnectionManager", ""},
			{"PeerConnectionID", "-1"},
			{"Direction", "Output"},
			{"Status", "OK"},
		}, nil
	case "PrepareForConnection":
		return [][2]string{
			{"ConnectionID", "0"},
			{"AVTransportID", "0"},
			{"RcsID", "0"},
		}, nil
	case "ConnectionComplete":
		return nil, nil
	default:
		return nil, upnp.Errorf(upnp.InvalidActionErrorCode, "unrecognized action %q", action)
	}
}

// BuildDeviceDescription assembles the root device description document
// served at /connection/description.xml, per spec §4.E.
func BuildDeviceDescription(friendlyName, udn, presentationURL string) upnp.DeviceDesc {
	return upnp.DeviceDesc{
		NSDLNA: "urn:schemas-dlna-org:device-1-0",
		NSSEC:  "http://www.sec.co.kr/dlna",
		Xmlns:  "urn:schemas-upnp-org:device-1-0",
		SpecVersion: upnp.SpecVersion{
			Major: 1,
			Minor: 0,
		},
		Device: upnp.Device{
			DeviceType:   "urn:schemas-upnp-org:device:MediaServer:1",
			FriendlyName: friendlyName,
			Manufacturer: "slms",
			ModelName:    "slms",
			UDN:          "uuid:" + udn,
			ServiceList: []upnp.Service{
				{
					ServiceType: "urn:schemas-upnp-org:service:ContentDirectory:1",
					ServiceId:   "urn:upnp-org:serviceId:ContentDirectory",
					ControlURL:  "/content/control",
					EventSubURL: "/content/event",
					SCPDURL:     "/connection/content_directory.xml",
				},
				{
					ServiceType: "urn:schemas-upnp-org:service:ConnectionManager:1",
					ServiceId:   "urn:upnp-org:serviceId:ConnectionManager",
					ControlURL:  "/connection/control",
					EventSubURL: "/connection/event",
					SCPDURL:     "/connection/connection_manager.xml",
				},
				{
					// Kept for XBox 360 / WMP11 compatibility, as the
					// teacher does: a registrar service that always
					// authorizes.
					ServiceType: "urn:microsoft.com:service:X_MS_MediaReceiverRegistrar:1",
					ServiceId:   "urn:microsoft.com:serviceId:X_MS_MediaReceiverRegistrar",
					ControlURL:  "/mediareceiverregistrar/control",
					EventSubURL: "/mediareceiverregistrar/event",
					SCPDURL:     "/mediareceiverregistrar/description.xml",
				},
			},
			IconList: []upnp.Icon{
				{Mimetype: "image/png", Width: 120, Height: 120, Depth: 24, URL: "/files/images/icon.png"},
			},
			PresentationURL: presentationURL,
		},
	}
}

// contentDirectorySCPD is the static SCPD XML for ContentDirectory:1,
// advertising the action set Service actually implements plus the
// CreateObject/DestroyObject/ImportResource family spec §9 calls for as
// "advertised but no-op" (a real control point may still probe for them
// before falling back to Browse-only use).
const contentDirectorySCPD = `<?xml version="1.0" encoding="UTF-8"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <actionList>
    <action><name>GetSearchCapabilities</name>
      <argumentList><argument><name>SearchCaps</name><direction>out</direction><relatedStateVariable>SearchCapabilities</relatedStateVariable></argument></argumentList>
    </action>
    <action><name>GetSortCapabilities</name>
      <argumentList><argument><name>SortCaps</name><direction>out</direction><relatedStateVariable>SortCapabilities</relatedStateVariable></argument></argumentList>
    </action>
    <action><name>GetSystemUpdateID</name>
      <argumentList><argument><name>Id</name><direction>out</direction><relatedStateVariable>SystemUpdateID</relatedStateVariable></argument></argumentList>
    </action>
    <action><name>Browse</name>
      <argumentList>
        <argument><name>ObjectID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_ObjectID</relatedStateVariable></argument>
        <argument><name>BrowseFlag</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_BrowseFlag</relatedStateVariable></argument>
        <argument><name>Filter</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Filter</relatedStateVariable></argument>
        <argument><name>StartingIndex</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Index</relatedStateVariable></argument>
        <argument><name>RequestedCount</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Count</relatedStateVariable></argument>
        <argument><name>SortCriteria</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_SortCriteria</relatedStateVariable></argument>
        <argument><name>Result</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_Result</relatedStateVariable></argument>
        <argument><name>NumberReturned</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_Count</relatedStateVariable></argument>
        <argument><name>TotalMatches</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_Count</relatedStateVariable></argument>
        <argument><name>UpdateID</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_UpdateID</relatedStateVariable></argument>
      </argumentList>
    </action>
    <action><name>Search</name>
      <argumentList>
        <argument><name>ContainerID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_ObjectID</relatedStateVariable></argument>
        <argument><name>SearchCriteria</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_SearchCriteria</relatedStateVariable></argument>
        <argument><name>Filter</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Filter</relatedStateVariable></argument>
        <argument><name>StartingIndex</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Index</relatedStateVariable></argument>
        <argument><name>RequestedCount</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Count</relatedStateVariable></argument>
        <argument><name>SortCriteria</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_SortCriteria</relatedStateVariable></argument>
        <argument><name>Result</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_Result</relatedStateVariable></argument>
        <argument><name>NumberReturned</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_Count</relatedStateVariable></argument>
        <argument><name>TotalMatches</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_Count</relatedStateVariable></argument>
        <argument><name>UpdateID</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_UpdateID</relatedStateVariable></argument>
      </argumentList>
    </action>
    <action><name>CreateObject</name><argumentList></argumentList></action>
    <action><name>DestroyObject</name><argumentList></argumentList></action>
    <action><name>UpdateObject</name><argumentList></argumentList></action>
    <action><name>ImportResource</name><argumentList></argumentList></action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="yes"><name>SystemUpdateID</name><dataType>ui4</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>SearchCapabilities</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>SortCapabilities</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_ObjectID</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_BrowseFlag</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_Filter</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_SortCriteria</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_SearchCriteria</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_Index</name><dataType>ui4</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_Count</name><dataType>ui4</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_UpdateID</name><dataType>ui4</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_Result</name><dataType>string</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

// connectionManagerSCPD is the static SCPD XML for ConnectionManager:1.
const connectionManagerSCPD = `<?xml version="1.0" encoding="UTF-8"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <actionList>
    <action><name>GetProtocolInfo</name>
      <argumentList>
        <argument><name>Source</name><direction>out</direction><relatedStateVariable>SourceProtocolInfo</relatedStateVariable></argument>
        <argument><name>Sink</name><direction>out</direction><relatedStateVariable>SinkProtocolInfo</relatedStateVariable></argument>
      </argumentList>
    </action>
    <action><name>GetCurrentConnectionIDs</name>
      <argumentList><argument><name>ConnectionIDs</name><direction>out</direction><relatedStateVariable>CurrentConnectionIDs</relatedStateVariable></argument></argumentList>
    </action>
    <action><name>GetCurrentConnectionInfo</name>
      <argumentList>
        <argument><name>ConnectionID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_ConnectionID</relatedStateVariable></argument>
        <argument><name>RcsID</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_RcsID</relatedStateVariable></argument>
        <argument><name>AVTransportID</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_AVTransportID</relatedStateVariable></argument>
        <argument><name>ProtocolInfo</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_ProtocolInfo</relatedStateVariable></argument>
        <argument><name>PeerConnectionManager</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_ConnectionManager</relatedStateVariable></argument>
        <argument><name>PeerConnectionID</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_ConnectionID</relatedStateVariable></argument>
        <argument><name>Direction</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_Direction</relatedStateVariable></argument>
        <argument><name>Status</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_ConnectionStatus</relatedStateVariable></argument>
      </argumentList>
    </action>
    <action><name>PrepareForConnection</name><argumentList></argumentList></action>
    <action><name>ConnectionComplete</name><argumentList></argumentList></action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="no"><name>SourceProtocolInfo</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>SinkProtocolInfo</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>CurrentConnectionIDs</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_ConnectionID</name><dataType>i4</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_RcsID</name><dataType>i4</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_AVTransportID</name><dataType>i4</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_ProtocolInfo</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_ConnectionManager</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_Direction</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_ConnectionStatus</name><dataType>string</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

// mediaReceiverRegistrarSCPD stubs the XBox 360 compatibility service: it
// always reports every device as authorized.
const mediaReceiverRegistrarSCPD = `<?xml version="1.0" encoding="UTF-8"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <actionList>
    <action><name>IsAuthorized</name>
      <argumentList>
        <argument><name>DeviceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_DeviceID</relatedStateVariable></argument>
        <argument><name>Result</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_Result</relatedStateVariable></argument>
      </argumentList>
    </action>
    <action><name>IsValidated</name>
      <argumentList>
        <argument><name>DeviceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_DeviceID</relatedStateVariable></argument>
        <argument><name>Result</name><direction>out</direction><relatedStateVariable>A_ARG_TYPE_Result</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_DeviceID</name><dataType>string</dataType></stateVariable>
    <stateVariable sendEvents="no"><name>A_ARG_TYPE_Result</name><dataType>i4</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

// SCPDFor returns the static SCPD document for one of the three services
// this package advertises.
func SCPDFor(serviceID string) (string, bool) {
	switch serviceID {
	case "ContentDirectory":
		return contentDirectorySCPD, true
	case "ConnectionManager":
		return connectionManagerSCPD, true
	case "X_MS_MediaReceiverRegistrar":
		return mediaReceiverRegistrarSCPD, true
	default:
		return "", false
	}
}

// MediaReceiverRegistrar implements the XBox 360 / WMP11 compatibility
// stub: every device is always authorized, matching the teacher's
// always-true handling for this service.
type MediaReceiverRegistrar struct{}

func (m *MediaReceiverRegistrar) Handle(action string, argsXML []byte, r *http.Request) ([][2]string, error) {
	switch action {
	case "IsAuthorized", "IsValidated":
		return [][2]string{{"Result", strconv.Itoa(1)}}, nil
	default:
		return nil, upnp.Errorf(upnp.InvalidActionErrorCode, "unrecognized action %q", action)
	}
}

func (m *MediaReceiverRegistrar) Subscribe(callback []*url.URL, timeoutSeconds int) (sid string, actualTimeout int, err error) {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 1800
	}
	return "uuid:" + newID(), timeoutSeconds, nil
}

func (m *MediaReceiverRegistrar) Unsubscribe(sid string) error { return nil }
