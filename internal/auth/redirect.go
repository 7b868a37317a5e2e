package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

var errRedirectNotAllowed = fmt.Errorf("%w: redirect_to not allowed", model.ErrValidation)

// origin returns scheme://host of an absolute http(s) URL, or "".
func origin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || u.User != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	return scheme + "://" + strings.ToLower(u.Host)
}

func allowedOrigins(baseURL string, allowlist []string) map[string]bool {
	origins := make(map[string]bool, len(allowlist)+1)
	for _, raw := range append([]string{baseURL}, allowlist...) {
		if o := origin(raw); o != "" {
			origins[o] = true
		}
	}
	return origins
}

// checkRedirect resolves redirectTo against BaseURL and rejects any target
// outside BaseURL's origin and the allowlist. Empty means the callback page.
func (s *Service) checkRedirect(redirectTo string) (string, error) {
	redirectTo = strings.TrimSpace(redirectTo)
	if redirectTo == "" {
		return s.baseURL + CallbackPath, nil
	}
	// "//host/..." без схемы уводит на чужой хост
	if strings.HasPrefix(redirectTo, "/") && !strings.HasPrefix(redirectTo, "//") && !strings.HasPrefix(redirectTo, "/\\") {
		redirectTo = s.baseURL + redirectTo
	}
	if !s.redirects[origin(redirectTo)] {
		return "", errRedirectNotAllowed
	}
	return redirectTo, nil
}
