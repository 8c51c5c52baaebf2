package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("source_url", validateSourceURL)
	_ = validate.RegisterValidation("public_url", validatePublicURL)
}

// ValidateSourceURL checks that u is an absolute http(s) URL. Unless allowPrivate
// is set, hosts on loopback, link-local or private networks are rejected.
func ValidateSourceURL(u string, allowPrivate bool) error {
	tag := "required,source_url,public_url"
	if allowPrivate {
		tag = "required,source_url"
	}
	if err := validate.Var(u, tag); err != nil {
		return fmt.Errorf("invalid URL %q: %w", u, err)
	}
	return nil
}

func validateSourceURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != ""
}

func validatePublicURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}

	host := u.Hostname()

	forbiddenHosts := []string{
		"localhost",
		"127.0.0.1",
		"::1",
		"0.0.0.0",
		"169.254.169.254",
	}

	for _, forbidden := range forbiddenHosts {
		if strings.EqualFold(host, forbidden) {
			return false
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return false
		}
	}

	return true
}
