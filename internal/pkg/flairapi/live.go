package flairapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/jake-scott/flair-bridge/internal/pkg/logging"
)

// DefaultAPIRoot is the production Flair API endpoint
const DefaultAPIRoot = "https://api.flair.co/"

const jsonAPIContentType = "application/vnd.api+json"

// token requests are bounded by this when the client has no timeout
const defaultTokenTimeout = time.Second * 30

var defaultScopes = []string{
	"structures.view", "structures.edit",
	"rooms.view", "rooms.edit",
	"vents.view", "vents.edit",
	"pucks.view",
}

// APIError is a non-2xx response from the Flair API
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: HTTP status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

type Live struct {
	root    *url.URL
	creds   Credentials
	timeout time.Duration
	http    *http.Client
}

// NewLiveClient returns a Flair API client authenticating with the OAuth2
// client-credentials grant against apiRoot
func NewLiveClient(apiRoot string, creds Credentials) (*Live, error) {
	if apiRoot == "" {
		apiRoot = DefaultAPIRoot
	}
	if !strings.HasSuffix(apiRoot, "/") {
		apiRoot += "/"
	}

	root, err := url.Parse(apiRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing api root %s", apiRoot)
	}

	c := &Live{
		root:  root,
		creds: creds,
	}
	c.http = c.oauthClient()

	return c, nil
}

func (c *Live) WithTimeout(d time.Duration) *Live {
	nc := *c
	nc.timeout = d
	nc.http = nc.oauthClient()
	return &nc
}

func (c *Live) oauthClient() *http.Client {
	cfg := clientcredentials.Config{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		TokenURL:     c.resolve("oauth/token"),
		Scopes:       defaultScopes,
	}

	timeout := c.timeout
	if timeout <= 0 {
		timeout = defaultTokenTimeout
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})

	// The token source caches and renews the access token for the life of
	// the client
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: cfg.TokenSource(tokenCtx),
			Base:   http.DefaultTransport,
		},
	}
}

func (c *Live) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return c.root.String() + strings.TrimPrefix(ref, "/")
	}

	return c.root.ResolveReference(u).String()
}

func (c *Live) MakeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}

	var ctx = parent
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, c.timeout)
	}

	return ctx, cancel
}

func (c *Live) do(ctx context.Context, method string, ref string, body interface{}) ([]byte, int, error) {
	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	target := c.resolve(ref)

	var reqBody *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, errors.Wrap(err, "encoding request body")
		}
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "building %s request for %s", method, target)
	}
	req.Header.Set("Accept", jsonAPIContentType)
	if body != nil {
		req.Header.Set("Content-Type", jsonAPIContentType)
	}

	logging.Logger(ctx).Debugf("flair api: %s %s", method, target)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "executing %s %s", method, target)
	}
	defer resp.Body.Close()

	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "reading response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &APIError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return respBody, resp.StatusCode, nil
}

func (c *Live) get(ctx context.Context, ref string) ([]*Resource, error) {
	body, status, err := c.do(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNoContent {
		return nil, ErrEmptyRelation
	}

	items, err := parseDocument(body)
	if err != nil && !errors.Is(err, ErrEmptyRelation) {
		return nil, errors.Wrapf(err, "parsing response from %s", ref)
	}

	return items, err
}

func (c *Live) Structures(ctx context.Context) ([]*Resource, error) {
	items, err := c.get(ctx, "api/structures")
	if errors.Is(err, ErrEmptyRelation) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing structures")
	}

	return items, nil
}

func (c *Live) Related(ctx context.Context, res *Resource, relation string) ([]*Resource, error) {
	link, ok := res.RelatedLink(relation)
	if !ok {
		logging.Logger(ctx).Debugf("%s has no %s relationship", res, relation)
		return nil, nil
	}

	items, err := c.get(ctx, link)
	if errors.Is(err, ErrEmptyRelation) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s of %s", relation, res)
	}

	return items, nil
}

type updateRequest struct {
	Data resourceObject `json:"data"`
}

func (c *Live) Update(ctx context.Context, res *Resource, attributes map[string]interface{}) error {
	req := updateRequest{
		Data: resourceObject{
			ID:         res.ID,
			Type:       res.Type,
			Attributes: attributes,
		},
	}

	body, status, err := c.do(ctx, http.MethodPatch, res.SelfLink(), req)
	if err != nil {
		return errors.Wrapf(err, "updating %s", res)
	}

	// Some endpoints answer a PATCH with no body: read the resource back so
	// the caller sees what the server actually stored
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		items, err := c.get(ctx, res.SelfLink())
		if err != nil {
			return errors.Wrapf(err, "reloading %s after update", res)
		}
		res.SetAttributes(items[0].Attributes())
		return nil
	}

	items, err := parseDocument(body)
	if err != nil {
		return errors.Wrapf(err, "parsing update response for %s", res)
	}
	res.SetAttributes(items[0].Attributes())

	return nil
}
