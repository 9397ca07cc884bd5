package browser

import (
	"github.com/go-rod/rod/lib/proto"

	"github.com/jroosing/hydrablock/internal/interceptor"
)

// ResourceTypeFor maps a CDP resource type to the interceptor's naming.
func ResourceTypeFor(t proto.NetworkResourceType) interceptor.ResourceType {
	switch t {
	case proto.NetworkResourceTypeDocument:
		return interceptor.TypeMainFrame
	case proto.NetworkResourceTypeStylesheet:
		return interceptor.TypeStylesheet
	case proto.NetworkResourceTypeScript:
		return interceptor.TypeScript
	case proto.NetworkResourceTypeImage:
		return interceptor.TypeImage
	case proto.NetworkResourceTypeFont:
		return interceptor.TypeFont
	case proto.NetworkResourceTypeMedia:
		return interceptor.TypeMedia
	case proto.NetworkResourceTypeXHR, proto.NetworkResourceTypeFetch, proto.NetworkResourceTypeEventSource:
		return interceptor.TypeXMLHTTPRequest
	case proto.NetworkResourceTypePing, proto.NetworkResourceTypeCSPViolationReport:
		return interceptor.TypePing
	case proto.NetworkResourceTypeWebSocket:
		return interceptor.TypeWebSocket
	default:
		return interceptor.TypeOther
	}
}
