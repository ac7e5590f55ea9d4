package replicate

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
)

// Interceptor mutates an outgoing request before it is sent, grounded in
// original_source/CloudantSync/HTTP/CDTSessionCookieInterceptorBase.h's
// CDTHTTPInterceptor protocol and the header-setting calls in the
// teacher's net_http.go (req.Header.Add(...)).
type Interceptor interface {
	InterceptRequest(req *http.Request) error
}

// InterceptorFunc adapts a plain function to Interceptor.
type InterceptorFunc func(req *http.Request) error

func (f InterceptorFunc) InterceptRequest(req *http.Request) error {
	return f(req)
}

const defaultSessionTTL = 10 * time.Minute

// SessionCookieInterceptor negotiates and caches a session cookie for
// username/password credentials, appended to the interceptor chain
// automatically by ReplicatorConfiguration when credentials are present
// (spec C4). It is lazy: the first InterceptRequest call that finds no
// cached, unexpired cookie for the request's host POSTs credentials to
// "<remote>/_session" before attaching the resulting cookie.
type SessionCookieInterceptor struct {
	username string
	password string
	remote   *url.URL
	client   *http.Client

	mutex sync.Mutex
	cache *ttlcache.Cache[string, string] // host -> Cookie header value ("AuthSession=...")
}

func NewSessionCookieInterceptor(username, password string, remote *url.URL) *SessionCookieInterceptor {
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](defaultSessionTTL),
	)
	go cache.Start()
	return &SessionCookieInterceptor{
		username: username,
		password: password,
		remote:   remote,
		client:   &http.Client{Timeout: 30 * time.Second},
		cache:    cache,
	}
}

func (s *SessionCookieInterceptor) InterceptRequest(req *http.Request) error {
	cookie, err := s.currentCookie(req)
	if err != nil {
		return err
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return nil
}

func (s *SessionCookieInterceptor) currentCookie(req *http.Request) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	host := req.URL.Host
	if item := s.cache.Get(host); item != nil && !s.isExpiredJwtCookie(item.Value()) {
		return item.Value(), nil
	}

	cookie, ttl, err := s.negotiateSession()
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	s.cache.Set(host, cookie, ttl)
	return cookie, nil
}

// isExpiredJwtCookie opportunistically parses a JWT-format session cookie
// (mirroring the teacher's jwt.go ParseByJwtUnverified) and reports
// whether its exp claim has already passed. Any cookie that is not a
// parseable JWT is treated as not-expired - the ttlcache entry's own TTL
// is the source of truth in that case.
func (s *SessionCookieInterceptor) isExpiredJwtCookie(cookie string) bool {
	token := strings.TrimPrefix(cookie, "AuthSession=")
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return false
	}
	claims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

func (s *SessionCookieInterceptor) negotiateSession() (cookie string, ttl time.Duration, err error) {
	sessionURL := *s.remote
	sessionURL.Path = strings.TrimSuffix(sessionURL.Path, "/") + "/_session"

	form := url.Values{}
	form.Set("name", s.username)
	form.Set("password", s.password)
	body := bytes.NewBufferString(form.Encode())

	req, err := http.NewRequest(http.MethodPost, sessionURL.String(), body)
	if err != nil {
		return "", 0, transportError(ErrStoreError, "failed to build session request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, transportError(ErrStoreError, "session negotiation request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", 0, transportError(ErrStoreError, fmt.Sprintf("session negotiation returned status %d", resp.StatusCode), nil)
	}

	for _, c := range resp.Cookies() {
		if c.Name == "AuthSession" {
			maxAge := time.Duration(c.MaxAge) * time.Second
			return fmt.Sprintf("%s=%s", c.Name, c.Value), maxAge, nil
		}
	}
	return "", 0, transportError(ErrStoreError, "session response carried no AuthSession cookie", nil)
}

// Close releases the interceptor's background TTL eviction goroutine.
func (s *SessionCookieInterceptor) Close() {
	s.cache.Stop()
}
