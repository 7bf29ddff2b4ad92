package session

import (
	"encoding/base64"
	"net/http"
	"time"
)

const defaultCookieMaxAge = 400 * 24 * time.Hour

// CookieOptions controls how session cookies are issued
type CookieOptions struct {
	Prefix string        // cookie name prefix, default "ingreso_"
	Secure bool          // set the Secure attribute
	MaxAge time.Duration // browser retention, default 400 days
}

// CookieBackend stores items as browser cookies for a single HTTP exchange.
// Reads see the request cookies overlaid with writes made during the exchange.
type CookieBackend struct {
	r       *http.Request
	w       http.ResponseWriter
	opts    CookieOptions
	pending map[string]*string // nil value marks a removal
}

// NewCookieBackend binds a backend to one request/response pair
func NewCookieBackend(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieBackend {
	if opts.Prefix == "" {
		opts.Prefix = "ingreso_"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultCookieMaxAge
	}
	return &CookieBackend{r: r, w: w, opts: opts, pending: make(map[string]*string)}
}

// NewCookieStore is a convenience for NewKVStore(NewCookieBackend(...))
func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) *KVStore {
	return NewKVStore(NewCookieBackend(w, r, opts))
}

func (c *CookieBackend) GetItem(key string) (string, bool, error) {
	if value, ok := c.pending[key]; ok {
		if value == nil {
			return "", false, nil
		}
		return *value, true, nil
	}

	cookie, err := c.r.Cookie(c.opts.Prefix + key)
	if err != nil {
		return "", false, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		// Tampered or foreign value; treat as absent
		return "", false, nil
	}
	return string(decoded), true, nil
}

func (c *CookieBackend) SetItem(key, value string) error {
	c.pending[key] = &value
	http.SetCookie(c.w, c.cookie(key, base64.RawURLEncoding.EncodeToString([]byte(value)), int(c.opts.MaxAge.Seconds())))
	return nil
}

func (c *CookieBackend) RemoveItem(key string) error {
	_, err := c.r.Cookie(c.opts.Prefix + key)
	inRequest := err == nil
	prev, written := c.pending[key]
	c.pending[key] = nil
	if inRequest || (written && prev != nil) {
		http.SetCookie(c.w, c.cookie(key, "", -1))
	}
	return nil
}

func (c *CookieBackend) cookie(key, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.opts.Prefix + key,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
