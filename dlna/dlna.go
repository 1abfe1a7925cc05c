// Package dlna provides the small DLNA interoperability constants layered
// on top of plain UPnP AV: the ContentFeatures flags string that accompanies
// every streamed resource's protocolInfo and HTTP response header.
package dlna

const (
	// ContentFeaturesDomain is the HTTP response header DLNA clients read
	// to learn streaming/seek capabilities out of band from protocolInfo.
	ContentFeaturesDomain = "ContentFeatures.DLNA.ORG"
	// TransferModeDomain announces the transfer mode (Streaming/Interactive).
	TransferModeDomain = "TransferMode.DLNA.ORG"
)

// ContentFeatures is the flag set this server ever advertises: plain
// byte-range streaming, no transcoding, no time-seek. (A transcoding
// pipeline would add SupportTimeSeek/Transcoded/ProfileName variants; none
// of that is implemented here.)
type ContentFeatures struct {
	SupportRange bool
}

// String renders the DLNA.ORG_OP/_CI feature string (no DLNA.ORG_PN profile
// name is emitted). Only the operations field (DLNA.ORG_OP) varies: "11" means byte-range
// seek is supported and no conversion has been applied to the resource.
func (cf ContentFeatures) String() string {
	op := "00"
	if cf.SupportRange {
		op = "11"
	}
	return "DLNA.ORG_OP=" + op + ";DLNA.ORG_CI=0"
}
