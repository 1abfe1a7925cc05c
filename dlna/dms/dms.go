// Package dms wires the ambient stack together into the running media
// server: SSDP announce/respond, the UPnP control endpoint dispatch, and
// the Dispatcher (component 4.H) that routes HTTP requests to
// ContentDirectory, ConnectionManager, and byte-range media streaming.
package dms

import (
	"bytes"
	"crypto/md5"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"os/user"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/log"

	"github.com/zeroexploit/slms/connectionmanager"
	"github.com/zeroexploit/slms/contentdirectory"
	"github.com/zeroexploit/slms/library"
	"github.com/zeroexploit/slms/soap"
	"github.com/zeroexploit/slms/ssdp"
	"github.com/zeroexploit/slms/transport"
	"github.com/zeroexploit/slms/upnp"
)

// serverVersion is advertised to other devices; it changes only when a
// potentially breaking change is made to wire behaviour.
const serverVersion = "1"

const (
	userAgentProduct     = "slms"
	rootDeviceType       = "urn:schemas-upnp-org:device:MediaServer:1"
	rootDescPath         = "/connection/description.xml"
	iconPath             = "/files/images/icon.png"
	contentPrefix        = "/content/"
	connectionPrefix     = "/connection/"
	mediaRegistrarPrefix = "/mediareceiverregistrar/"
	streamPrefix         = "/stream/"
)

var rootDeviceModelName = fmt.Sprintf("%s %s", userAgentProduct, serverVersion)

func makeDeviceUUID(unique string) string {
	h := md5.New()
	if _, err := io.WriteString(h, unique); err != nil {
		log.Panicf("makeDeviceUUID write failed: %s", err)
	}
	return upnp.FormatUUID(h.Sum(nil))
}

func deviceTypeURNs() []string {
	return []string{rootDeviceType}
}

func serviceTypeURNs() []string {
	return []string{
		"urn:schemas-upnp-org:service:ContentDirectory:1",
		"urn:schemas-upnp-org:service:ConnectionManager:1",
		"urn:microsoft.com:service:X_MS_MediaReceiverRegistrar:1",
	}
}

// UPnPService is the interface every dispatched SOAP service implements.
type UPnPService interface {
	Handle(action string, argsXML []byte, r *http.Request) (respArgs [][2]string, err error)
	Subscribe(callback []*url.URL, timeoutSeconds int) (sid string, actualTimeout int, err error)
	Unsubscribe(sid string) error
}

// Server is the running media server: one HTTP listener plus one SSDP
// announcer per configured network interface.
type Server struct {
	HTTPConn        net.Listener
	FriendlyName    string
	Interfaces      []net.Interface
	Library         *library.Library
	RenderOpts      contentdirectory.RenderOptions
	Renderers       map[string]contentdirectory.RenderOptions
	DefaultRenderer string
	IconPath        string
	LogHeaders      bool
	NotifyInterval  time.Duration
	AllowedIpNets   []*net.IPNet
	Logger          log.Logger

	httpServeMux   *http.ServeMux
	rootDescXML    []byte
	rootDeviceUUID string
	closed         chan struct{}
	ssdpStopped    chan struct{}
	services       map[string]UPnPService
	eventingLogger log.Logger
}

func (srv *Server) httpPort() int {
	return srv.HTTPConn.Addr().(*net.TCPAddr).Port
}

// An interface with these flags should be valid for SSDP.
const ssdpInterfaceFlags = net.FlagUp | net.FlagMulticast

func (srv *Server) doSSDP() {
	var wg sync.WaitGroup
	for _, iface := range srv.Interfaces {
		iface := iface
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.ssdpInterface(iface)
		}()
	}
	wg.Wait()
}

func (srv *Server) ssdpInterface(iface net.Interface) {
	logger := srv.Logger.WithNames("ssdp", iface.Name)
	s := ssdp.Server{
		Interface: iface,
		Devices:   deviceTypeURNs(),
		Services:  serviceTypeURNs(),
		Location: func(ip net.IP) string {
			return srv.location(ip)
		},
		Server:         transport.ServerTag,
		UUID:           srv.rootDeviceUUID,
		NotifyInterval: srv.NotifyInterval,
		Logger:         logger,
	}
	if err := s.Init(); err != nil {
		if iface.Flags&ssdpInterfaceFlags != ssdpInterfaceFlags {
			return
		}
		if strings.Contains(err.Error(), "listen") {
			return
		}
		logger.Printf("error creating ssdp server on %s: %s", iface.Name, err)
		return
	}
	defer s.Close()
	logger.Levelf(log.Info, "started SSDP on %q", iface.Name)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := s.Serve(); err != nil {
			logger.Printf("%q: %q\n", iface.Name, err)
		}
	}()
	select {
	case <-srv.closed:
	case <-stopped:
	}
}

func getDefaultFriendlyName() string {
	u, err := user.Current()
	if err != nil {
		log.Panicf("getDefaultFriendlyName could not get username: %s", err)
	}
	host, err := os.Hostname()
	if err != nil {
		log.Panicf("getDefaultFriendlyName could not get hostname: %s", err)
	}
	return fmt.Sprintf("%s: %s on %s", rootDeviceModelName, u.Name, host)
}

func xmlMarshalOrPanic(value interface{}) []byte {
	ret, err := xml.MarshalIndent(value, "", "  ")
	if err != nil {
		log.Panicf("xmlMarshalOrPanic failed to marshal %v: %s", value, err)
	}
	return ret
}

// mitmRespWriter optionally logs response headers, the way the teacher's
// own debugging shim does.
type mitmRespWriter struct {
	http.ResponseWriter
	loggedHeader bool
	logHeader    bool
}

func (w *mitmRespWriter) WriteHeader(code int) {
	w.doLogHeader(code)
	w.ResponseWriter.WriteHeader(code)
}

func (w *mitmRespWriter) doLogHeader(code int) {
	if !w.logHeader {
		return
	}
	fmt.Fprintln(os.Stderr, code)
	for k, v := range w.Header() {
		fmt.Fprintln(os.Stderr, k, v)
	}
	fmt.Fprintln(os.Stderr)
	w.loggedHeader = true
}

func (w *mitmRespWriter) Write(b []byte) (int, error) {
	if !w.loggedHeader {
		w.doLogHeader(200)
	}
	return w.ResponseWriter.Write(b)
}

func (srv *Server) serveHTTP() error {
	httpSrv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if srv.LogHeaders {
				fmt.Fprintf(os.Stderr, "%s %s\r\n", r.Method, r.RequestURI)
				r.Header.Write(os.Stderr)
				fmt.Fprintln(os.Stderr)
			}
			w.Header().Set("Ext", "")
			w.Header().Set("Server", transport.ServerTag)
			srv.httpServeMux.ServeHTTP(&mitmRespWriter{
				ResponseWriter: w,
				logHeader:      srv.LogHeaders,
			}, r)
		}),
	}
	err := httpSrv.Serve(srv.HTTPConn)
	select {
	case <-srv.closed:
		return nil
	default:
		return err
	}
}

// marshalSOAPResponse wraps SOAP response arguments into the
// "<u:ActionResponse>" snippet.
func marshalSOAPResponse(sa upnp.SoapAction, args [][2]string) []byte {
	soapArgs := make([]soap.Arg, 0, len(args))
	for _, arg := range args {
		soapArgs = append(soapArgs, soap.Arg{XMLName: xml.Name{Local: arg[0]}, Value: arg[1]})
	}
	return []byte(fmt.Sprintf(`<u:%[1]sResponse xmlns:u="%[2]s">%[3]s</u:%[1]sResponse>`,
		sa.Action, sa.ServiceURN.String(), xmlMarshalOrPanic(soapArgs)))
}

// serviceControlHandler builds the SOAP request handler for one named
// service. The URL path already identifies the target service; the
// SOAPACTION header only needs to yield the action name.
func (srv *Server) serviceControlHandler(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !srv.clientAllowed(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		sa, err := upnp.ParseActionHTTPHeader(r.Header.Get("SOAPACTION"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var env soap.Envelope
		if err := xml.NewDecoder(r.Body).Decode(&env); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		service, ok := srv.services[serviceName]
		if !ok {
			http.Error(w, "no such service", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		w.Header().Set("Ext", "")
		w.Header().Set("Server", transport.ServerTag)
		soapRespXML, code := func() ([]byte, int) {
			respArgs, err := service.Handle(sa.Action, env.Body.Action, r)
			if err != nil {
				upnpErr := upnp.ConvertError(err)
				return xmlMarshalOrPanic(soap.NewFault("UPnPError", soap.UPnPError{Code: upnpErr.Code, Description: upnpErr.Desc})), 500
			}
			return marshalSOAPResponse(sa, respArgs), 200
		}()
		body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8" standalone="yes"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>%s</s:Body></s:Envelope>`, soapRespXML)
		w.WriteHeader(code)
		if _, err := w.Write([]byte(body)); err != nil {
			srv.Logger.Levelf(log.Debug, "write response failed: %s", err)
		}
	}
}

// clientAllowed enforces the AllowedIpNets allowlist for the control
// endpoints; an empty allowlist permits everyone.
func (srv *Server) clientAllowed(r *http.Request) bool {
	if len(srv.AllowedIpNets) == 0 {
		return true
	}
	clientIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if idx := strings.Index(clientIP, "%"); idx != -1 {
		clientIP = clientIP[:idx]
	}
	ip := net.ParseIP(clientIP)
	for _, ipnet := range srv.AllowedIpNets {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

func (srv *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, streamPrefix)
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		transport.SendError(w, http.StatusBadRequest)
		return
	}
	item, err := srv.Library.GetItemDirect(id)
	if err != nil {
		transport.SendError(w, http.StatusNotFound)
		return
	}
	transport.SendFile(w, r, item.FilePath, contentdirectory.MimeType(item))
}

func (srv *Server) serveIcon(w http.ResponseWriter, r *http.Request) {
	if srv.IconPath == "" {
		transport.SendError(w, http.StatusNotFound)
		return
	}
	transport.SendFile(w, r, srv.IconPath, "image/png")
}

func (srv *Server) serveSCPD(doc string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		http.ServeContent(w, r, "", startTime, bytes.NewReader([]byte(doc)))
	}
}

var startTime time.Time

func init() {
	startTime = time.Now()
}

func (srv *Server) initMux(mux *http.ServeMux) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such object", http.StatusBadRequest)
	})
	mux.HandleFunc(rootDescPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(srv.rootDescXML)))
		w.Header().Set("Server", transport.ServerTag)
		w.Write(srv.rootDescXML)
	})

	if doc, ok := connectionmanager.SCPDFor("ContentDirectory"); ok {
		mux.HandleFunc(connectionPrefix+"content_directory.xml", srv.serveSCPD(doc))
	}
	mux.HandleFunc(contentPrefix+"control", srv.serviceControlHandler("ContentDirectory"))

	if doc, ok := connectionmanager.SCPDFor("ConnectionManager"); ok {
		mux.HandleFunc(connectionPrefix+"connection_manager.xml", srv.serveSCPD(doc))
	}
	mux.HandleFunc(connectionPrefix+"control", srv.serviceControlHandler("ConnectionManager"))

	if doc, ok := connectionmanager.SCPDFor("X_MS_MediaReceiverRegistrar"); ok {
		mux.HandleFunc(mediaRegistrarPrefix+"description.xml", srv.serveSCPD(doc))
	}
	mux.HandleFunc(mediaRegistrarPrefix+"control", srv.serviceControlHandler("X_MS_MediaReceiverRegistrar"))

	mux.HandleFunc(streamPrefix, srv.serveStream)
	mux.HandleFunc(iconPath, srv.serveIcon)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
}

func (srv *Server) initServices() {
	srv.services = map[string]UPnPService{
		"ContentDirectory": &contentdirectory.Service{
			Library:         srv.Library,
			Opts:            srv.RenderOpts,
			Renderers:       srv.Renderers,
			DefaultRenderer: srv.DefaultRenderer,
			Logger:          srv.Logger.WithNames("contentdirectory"),
		},
		"ConnectionManager":           &connectionmanager.Service{},
		"X_MS_MediaReceiverRegistrar": &connectionmanager.MediaReceiverRegistrar{},
	}
}

// Init prepares the server for Run: it boots the Library, builds the SOAP
// service dispatch table, picks a listener/interface set if none was
// supplied, and renders the device description document.
func (srv *Server) Init() (err error) {
	srv.eventingLogger = srv.Logger.WithNames("eventing")
	srv.initServices()
	srv.closed = make(chan struct{})

	if srv.FriendlyName == "" {
		srv.FriendlyName = getDefaultFriendlyName()
	}
	if srv.HTTPConn == nil {
		if srv.HTTPConn, err = net.Listen("tcp", ""); err != nil {
			return err
		}
	}
	if srv.Interfaces == nil {
		ifs, err := net.Interfaces()
		if err != nil {
			srv.Logger.Print(err)
		}
		var usable []net.Interface
		for _, iface := range ifs {
			if iface.Flags&net.FlagUp == 0 || iface.MTU <= 0 {
				continue
			}
			usable = append(usable, iface)
		}
		srv.Interfaces = usable
	}

	if err = srv.Library.BootUp(); err != nil {
		return fmt.Errorf("booting library: %w", err)
	}

	srv.rootDeviceUUID = makeDeviceUUID(srv.FriendlyName)
	transport.ServerUUID = srv.rootDeviceUUID

	desc := connectionmanager.BuildDeviceDescription(srv.FriendlyName, srv.rootDeviceUUID, "/")
	descXML, err := xml.MarshalIndent(desc, " ", "  ")
	if err != nil {
		return err
	}
	srv.rootDescXML = append([]byte(`<?xml version="1.0"?>`), descXML...)

	srv.httpServeMux = http.NewServeMux()
	srv.initMux(srv.httpServeMux)
	srv.ssdpStopped = make(chan struct{})
	srv.Logger.Println("HTTP srv on", srv.HTTPConn.Addr())
	return nil
}

// Run starts the SSDP announcers and serves HTTP until Close is called.
func (srv *Server) Run() (err error) {
	go func() {
		srv.doSSDP()
		close(srv.ssdpStopped)
	}()
	return srv.serveHTTP()
}

// Close shuts the server down: stop accepting HTTP, send ssdp:byebye on
// every interface, and wait for the announcers to exit.
func (srv *Server) Close() (err error) {
	close(srv.closed)
	err = srv.HTTPConn.Close()
	<-srv.ssdpStopped
	return
}

func (srv *Server) location(ip net.IP) string {
	u := url.URL{
		Scheme: "http",
		Host: (&net.TCPAddr{
			IP:   ip,
			Port: srv.httpPort(),
		}).String(),
		Path: rootDescPath,
	}
	return u.String()
}
