package interceptor

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/florianilch/authshim/internal/extractor"
	"github.com/florianilch/authshim/internal/scope"
)

// maxInspectedBody bounds how much of a response body is buffered for token
// extraction. Larger login bodies are not inspected.
const maxInspectedBody = 1 << 20

var (
	errNoBody              = errors.New("response has no body")
	errUnsupportedEncoding = errors.New("unsupported content encoding")
)

// Store is the credential store as seen by the interceptors: tokens are read
// through oauth2.TokenSource and written through the extractor.
type Store interface {
	oauth2.TokenSource
	extractor.Store
}

// Interceptor holds the shared classification, injection and extraction logic.
type Interceptor struct {
	classifier *scope.Classifier
	tokens     oauth2.TokenSource
	extractor  *extractor.Extractor
}

// New creates an Interceptor classifying with classifier and keeping the
// credential in store.
func New(classifier *scope.Classifier, store Store) *Interceptor {
	return &Interceptor{
		classifier: classifier,
		tokens:     store,
		extractor:  extractor.New(store),
	}
}

// authorization returns the Authorization header value for the stored
// credential, or false if there is none.
func (i *Interceptor) authorization() (string, bool) {
	tok, err := i.tokens.Token()
	if err != nil || tok == nil || tok.AccessToken == "" {
		return "", false
	}
	return tok.Type() + " " + tok.AccessToken, true
}

// authorize injects the stored credential into header unless an Authorization
// entry is already present under any spelling of the key.
func (i *Interceptor) authorize(header http.Header) {
	if hasAuthorization(header) {
		return
	}
	if value, ok := i.authorization(); ok {
		header.Set("Authorization", value)
	}
}

// hasAuthorization reports whether header carries an Authorization key.
// Keys set directly on the map are not canonicalized.
func hasAuthorization(header http.Header) bool {
	for key := range header {
		if strings.EqualFold(key, "Authorization") {
			return true
		}
	}
	return false
}

// observe runs the extractor on a completed call. The body is only read when
// the extractor asks for it, and resp.Body is rebuilt so the caller still
// reads the complete stream.
func (i *Interceptor) observe(ctx context.Context, target string, resp *http.Response) {
	path := i.classifier.Path(target)
	if resp.Request != nil && resp.Request.URL != nil {
		path = resp.Request.URL.EscapedPath()
	}

	i.extractor.Observe(ctx, extractor.Response{
		Path:   path,
		Status: resp.StatusCode,
		Body: func() ([]byte, error) {
			return duplicateBody(resp)
		},
	})
}

// replayBody serves the buffered prefix followed by the unread remainder.
type replayBody struct {
	io.Reader
	io.Closer
}

// duplicateBody buffers up to maxInspectedBody bytes of resp.Body for the
// extractor and decodes that copy per Content-Encoding. The caller reads the
// original bytes unchanged.
func duplicateBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, errNoBody
	}

	orig := resp.Body
	data, err := io.ReadAll(io.LimitReader(orig, maxInspectedBody))
	resp.Body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(data), orig),
		Closer: orig,
	}
	if err != nil {
		return data, err
	}
	return decodeBody(resp.Header.Get("Content-Encoding"), data)
}

// decodeBody returns data decoded per a gzip or deflate Content-Encoding.
// A body truncated by the inspection limit decodes as far as it goes.
func decodeBody(encoding string, data []byte) ([]byte, error) {
	var r io.ReadCloser
	var err error

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return data, nil
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(bytes.NewReader(data))
	case "deflate":
		// HTTP deflate is zlib-wrapped; some servers send raw deflate anyway.
		r, err = zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			r, err = flate.NewReader(bytes.NewReader(data)), nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedEncoding, encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s body: %w", encoding, err)
	}
	defer func() { _ = r.Close() }()

	decoded, err := io.ReadAll(io.LimitReader(r, maxInspectedBody))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("decoding %s body: %w", encoding, err)
	}
	return decoded, nil
}
