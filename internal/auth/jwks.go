package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// MinRefreshInterval caps key set refetches triggered by unknown key ids at
// five per minute.
const MinRefreshInterval = 12 * time.Second

const (
	defaultJWKSTTL     = time.Hour
	jwksFetchTimeout   = 10 * time.Second
	refreshWaitTimeout = time.Second
)

// KeySource resolves the verification key for a token.
type KeySource interface {
	KeyfuncCtx(ctx context.Context) jwt.Keyfunc
}

// StaticKey serves the same key for every token. Used for HS256.
type StaticKey struct {
	key interface{}
}

func NewStaticKey(key interface{}) *StaticKey {
	return &StaticKey{key: key}
}

func (s *StaticKey) KeyfuncCtx(context.Context) jwt.Keyfunc {
	return func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	}
}

// JWKS serves keys from a remote JSON Web Key Set. The set is refreshed every
// ttl and again, rate limited, when a token names an unknown key id.
type JWKS struct {
	keyfunc.Keyfunc
	cancel context.CancelFunc
}

// NewJWKS fetches the key set once before returning. A failed first fetch is
// logged and retried on demand, so an unreachable provider does not prevent
// startup.
func NewJWKS(url string, ttl time.Duration, client *http.Client) (*JWKS, error) {
	if ttl <= 0 {
		ttl = defaultJWKSTTL
	}
	if client == nil {
		client = &http.Client{Timeout: jwksFetchTimeout}
	}

	ctx, cancel := context.WithCancel(context.Background())
	storage, err := jwkset.NewStorageFromHTTP(url, jwkset.HTTPClientStorageOptions{
		Client:                    client,
		Ctx:                       ctx,
		HTTPTimeout:               jwksFetchTimeout,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           ttl,
		RefreshErrorHandler: func(ctx context.Context, err error) {
			slog.Default().WarnContext(ctx, "JWKS refresh failed", "url", url, "error", err)
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("auth: JWKS storage: %w", err)
	}

	remote, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{url: storage},
		RateLimitWaitMax:  refreshWaitTimeout,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(MinRefreshInterval), 1),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("auth: JWKS client: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: remote})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("auth: JWKS keyfunc: %w", err)
	}

	return &JWKS{Keyfunc: kf, cancel: cancel}, nil
}

// Close stops the background refresh.
func (j *JWKS) Close() {
	j.cancel()
}
