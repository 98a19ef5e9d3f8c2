package util

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/galaxyproject/depotsync/util/common/errors"
)

type registryKeychain struct {
	username string
	password string
	hostname string
}

// NewKeychain authenticates requests to hostname with the given credentials and
// leaves every other registry anonymous.
func NewKeychain(username, password, hostname string) authn.Keychain {
	return registryKeychain{
		username: username,
		password: password,
		hostname: hostname,
	}
}

func (k registryKeychain) Resolve(r authn.Resource) (authn.Authenticator, error) {
	serverURL, err := url.Parse("https://" + r.String())
	if err != nil {
		return authn.Anonymous, nil
	}

	if k.username == "" || k.password == "" {
		return authn.Anonymous, nil
	}

	if strings.EqualFold(serverURL.Hostname(), k.hostname) {
		return registryAuthenticator{k.username, k.password}, nil
	}
	return authn.Anonymous, nil
}

type registryAuthenticator struct{ username, password string }

func (a registryAuthenticator) Authorization() (*authn.AuthConfig, error) {
	return &authn.AuthConfig{
		Username: a.username,
		Password: a.password,
	}, nil
}

// CraneOptions builds the options shared by every registry call. Credentials
// are only sent to registry; password falls back to token.
func CraneOptions(ctx context.Context, registry, username, password, token string, insecure bool, userAgent string) []crane.Option {
	if password == "" {
		password = token
	}
	host := registry
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	opts := []crane.Option{
		crane.WithContext(ctx),
		crane.WithAuthFromKeychain(authn.NewMultiKeychain(NewKeychain(username, password, host), authn.DefaultKeychain)),
	}
	if userAgent != "" {
		opts = append(opts, crane.WithUserAgent(userAgent))
	}
	if insecure {
		opts = append(opts, crane.Insecure)
	}
	return opts
}

// RegistryErrorKind classifies an error from go-containerregistry. Registry
// responses are classified by status code and by the error codes they carry.
func RegistryErrorKind(err error) errors.Kind {
	var terr *transport.Error
	if errors.As(err, &terr) {
		for _, d := range terr.Errors {
			switch d.Code {
			case transport.ManifestUnknownErrorCode, transport.NameUnknownErrorCode, transport.UnauthorizedErrorCode,
				transport.DeniedErrorCode, transport.NameInvalidErrorCode, transport.ManifestInvalidErrorCode:
				return errors.KindPermanent
			case transport.TooManyRequestsErrorCode, transport.UnavailableErrorCode:
				return errors.KindTransient
			}
		}
		return errors.KindFromHTTPStatus(terr.StatusCode)
	}
	return errors.KindOf(err)
}
