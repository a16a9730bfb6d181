package message

const (
	PayloadMarker = 0xff
	CoapVersion   = 1
	MaxTokenLen   = 8
)

const (
	DataHeader     = 0
	DataCode       = 1
	DataMsgIDStart = 2
	DataMsgIDEnd   = 4
	DataTokenStart = 4
)

type CoapType uint8

const (
	CON CoapType = 0
	NON CoapType = 1
	ACK CoapType = 2
	RST CoapType = 3
)

type CoapCode uint8

const (

	//methods
	GET    CoapCode = 1
	POST   CoapCode = 2
	PUT    CoapCode = 3
	DELETE CoapCode = 4

	// Response
	CoapCodeEmpty   CoapCode = 0
	CoapCodeCreated CoapCode = 65
	CoapCodeDeleted CoapCode = 66
	CoapCodeValid   CoapCode = 67
	CoapCodeChanged CoapCode = 68
	CoapCodeContent CoapCode = 69

	// Errors
	CoapCodeBadRequest               CoapCode = 128
	CoapCodeUnauthorized             CoapCode = 129
	CoapCodeBadOption                CoapCode = 130
	CoapCodeForbidden                CoapCode = 131
	CoapCodeNotFound                 CoapCode = 132
	CoapCodeMethodNotAllowed         CoapCode = 133
	CoapCodeNotAcceptable            CoapCode = 134
	CoapCodePreconditionFailed       CoapCode = 140
	CoapCodeRequestEntityTooLarge    CoapCode = 141
	CoapCodeUnsupportedContentFormat CoapCode = 143
	CoapCodeInternalServerError      CoapCode = 160
	CoapCodeNotImplemented           CoapCode = 161
	CoapCodeBadGateway               CoapCode = 162
	CoapCodeServiceUnavailable       CoapCode = 163
	CoapCodeGatewayTimeout           CoapCode = 164
	CoapCodeProxyingNotSupported     CoapCode = 165
)

func (c CoapCode) IsRequest() bool {
	return c > 0 && c <= 4
}

// Class returns the code class (2 for 2.05 Content).
func (c CoapCode) Class() int {
	return int(c >> 5)
}

// Detail returns the code detail (5 for 2.05 Content).
func (c CoapCode) Detail() int {
	return int(c & 0x1f)
}

type MediaType int

const (
	MediaTypeTextPlain              MediaType = 0
	MediaTypeApplicationLinkFormat  MediaType = 40
	MediaTypeApplicationXML         MediaType = 41
	MediaTypeApplicationOctetStream MediaType = 42
	MediaTypeApplicationExi         MediaType = 47
	MediaTypeApplicationJSON        MediaType = 50
)

type OptionCode int

const (
	OptionIfMatch       OptionCode = 1
	OptionURIHost       OptionCode = 3
	OptionEtag          OptionCode = 4
	OptionIfNoneMatch   OptionCode = 5
	OptionObserve       OptionCode = 6
	OptionURIPort       OptionCode = 7
	OptionLocationPath  OptionCode = 8
	OptionURIPath       OptionCode = 11
	OptionContentFormat OptionCode = 12
	OptionMaxAge        OptionCode = 14
	OptionURIQuery      OptionCode = 15
	OptionAccept        OptionCode = 17
	OptionLocationQuery OptionCode = 20
	OptionSize2         OptionCode = 28
	OptionProxyURI      OptionCode = 35
	OptionProxyScheme   OptionCode = 39
	OptionSize1         OptionCode = 60
)
