package genai

import (
	"fmt"
	neturl "net/url"
	"regexp"
	"strings"

	"server/internal/domain"
)

const defaultAPIVersion = "v1beta"

var versionSegment = regexp.MustCompile(`^v\d+(alpha|beta)?$`)

// ResolveEndpoint builds the concrete request URL for one credential. Two
// addressing styles are supported: a gateway that already names a concrete
// generation endpoint is reused as-is, while a bare gateway is normalized to a
// versioned API root and extended with the model path. The API key is carried
// as a query parameter and never duplicated when the gateway already has one.
func ResolveEndpoint(gateway, model, apiKey string) (string, error) {
	gateway = strings.TrimRight(strings.TrimSpace(gateway), "/")
	if gateway == "" {
		return "", domain.NewConfigError("generation gateway is not configured")
	}

	var endpoint string
	if strings.Contains(gateway, ":generateContent") || strings.Contains(gateway, ":streamGenerateContent") {
		endpoint = gateway
	} else {
		if strings.TrimSpace(model) == "" {
			return "", domain.NewConfigError("generation model is not configured")
		}
		base := gateway
		if !versionSegment.MatchString(lastPathSegment(base)) {
			base += "/" + defaultAPIVersion
		}
		endpoint = fmt.Sprintf("%s/models/%s:generateContent", base, neturl.PathEscape(model))
	}

	u, err := neturl.Parse(endpoint)
	if err != nil {
		return "", domain.NewConfigError("invalid generation gateway %q: %v", gateway, err)
	}
	q := u.Query()
	if q.Get("key") == "" && strings.TrimSpace(apiKey) != "" {
		q.Set("key", strings.TrimSpace(apiKey))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func lastPathSegment(rawURL string) string {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.TrimRight(u.Path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
