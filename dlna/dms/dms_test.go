package dms

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/zeroexploit/slms/upnp"
)

func TestMakeDeviceUUIDIsStableAndLooksLikeAUUID(t *testing.T) {
	a := makeDeviceUUID("share:/media/movies")
	b := makeDeviceUUID("share:/media/movies")
	if a != b {
		t.Fatalf("makeDeviceUUID is not deterministic: %q != %q", a, b)
	}
	if strings.Count(a, "-") != 4 {
		t.Fatalf("makeDeviceUUID = %q, doesn't look like a dashed UUID", a)
	}
	if makeDeviceUUID("share:/media/music") == a {
		t.Fatal("makeDeviceUUID should differ for a different unique input")
	}
}

func TestClientAllowedEmptyAllowlistPermitsEveryone(t *testing.T) {
	srv := &Server{}
	r := &http.Request{RemoteAddr: "203.0.113.5:51234"}
	if !srv.clientAllowed(r) {
		t.Fatal("an empty AllowedIpNets should permit every client")
	}
}

func TestClientAllowedEnforcesConfiguredNets(t *testing.T) {
	_, allowedNet, err := net.ParseCIDR("192.168.1.0/24")
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{AllowedIpNets: []*net.IPNet{allowedNet}}

	inNet := &http.Request{RemoteAddr: "192.168.1.42:51234"}
	if !srv.clientAllowed(inNet) {
		t.Fatal("expected a client inside the allowed CIDR to be permitted")
	}

	outOfNet := &http.Request{RemoteAddr: "10.0.0.7:51234"}
	if srv.clientAllowed(outOfNet) {
		t.Fatal("expected a client outside every allowed CIDR to be rejected")
	}
}

func TestClientAllowedStripsIPv6ZoneID(t *testing.T) {
	_, allowedNet, err := net.ParseCIDR("fe80::/10")
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{AllowedIpNets: []*net.IPNet{allowedNet}}
	r := &http.Request{RemoteAddr: "[fe80::1%eth0]:51234"}
	if !srv.clientAllowed(r) {
		t.Fatal("expected a link-local client with a zone id to match after stripping it")
	}
}

func TestMarshalSOAPResponseWrapsArgsInActionResponse(t *testing.T) {
	sa := upnp.SoapAction{
		Action:     "Browse",
		ServiceURN: upnp.ServiceURN{Domain: "schemas-upnp-org", Type: "ContentDirectory", Version: "1"},
	}
	body := string(marshalSOAPResponse(sa, [][2]string{{"NumberReturned", "3"}}))
	if !strings.HasPrefix(body, `<u:BrowseResponse xmlns:u="urn:schemas-upnp-org:service:ContentDirectory:1">`) {
		t.Fatalf("unexpected response prefix: %q", body)
	}
	if !strings.Contains(body, "<NumberReturned>3</NumberReturned>") {
		t.Fatalf("response doesn't carry the NumberReturned arg: %q", body)
	}
	if !strings.HasSuffix(body, "</u:BrowseResponse>") {
		t.Fatalf("response doesn't close the ActionResponse element: %q", body)
	}
}

func TestLocationBuildsRootDescURLFromListenerPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	srv := &Server{HTTPConn: ln}

	got := srv.location(net.ParseIP("127.0.0.1"))
	port := ln.Addr().(*net.TCPAddr).Port
	want := "http://127.0.0.1:" + strconv.Itoa(port) + "/connection/description.xml"
	if got != want {
		t.Fatalf("location = %q, want %q", got, want)
	}
}
