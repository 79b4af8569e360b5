package keycloak

import (
	"net/http"
	"strings"
	"time"
)

// Config names a realm and the public client we log in through.
type Config struct {
	ServerURL string // e.g. http://localhost:8000
	Realm     string
	ClientID  string
}

// Client talks to the OpenID Connect endpoints of one Keycloak realm.
// Everything here is stateless; Adapter layers the session on top.
type Client struct {
	cfg        Config
	HTTPClient *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.ServerURL = strings.TrimSuffix(cfg.ServerURL, "/")
	return &Client{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ClientID() string { return c.cfg.ClientID }

// Issuer is the iss claim the realm stamps on its tokens.
func (c *Client) Issuer() string {
	return c.cfg.ServerURL + "/realms/" + c.cfg.Realm
}

func (c *Client) endpoint(name string) string {
	return c.Issuer() + "/protocol/openid-connect/" + name
}

func (c *Client) AuthURL() string     { return c.endpoint("auth") }
func (c *Client) TokenURL() string    { return c.endpoint("token") }
func (c *Client) LogoutURL() string   { return c.endpoint("logout") }
func (c *Client) CertsURL() string    { return c.endpoint("certs") }
func (c *Client) UserInfoURL() string { return c.endpoint("userinfo") }
