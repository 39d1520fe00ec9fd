package activitypub

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Authentication failures. The receiving side maps these to a transport
// rejection; none of them enqueue the request.
var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrDigestMismatch   = errors.New("digest mismatch")
	ErrStaleRequest     = errors.New("stale request")
	ErrUnknownKey       = errors.New("unknown key")
	ErrInvalidSignature = errors.New("invalid signature")
)

const algorithmHS2019 = "hs2019"

// signedHeaders is the header set signed on outbound requests.
var signedHeaders = []string{"(request-target)", "host", "date", "digest", "content-type"}

// Signature is a parsed Signature header.
type Signature struct {
	KeyId     string
	Algorithm string
	Headers   []string
	Value     []byte
}

var sigParamPattern = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ParseSignatureHeader parses the parameter list of a Signature header:
// keyId="...",algorithm="hs2019",headers="...",signature="...".
func ParseSignatureHeader(header string) (*Signature, error) {
	params := make(map[string]string)
	for _, m := range sigParamPattern.FindAllStringSubmatch(header, -1) {
		params[m[1]] = m[2]
	}

	if params["keyId"] == "" || params["signature"] == "" {
		return nil, fmt.Errorf("%w: missing keyId or signature", ErrInvalidSignature)
	}

	value, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 signature: %v", ErrInvalidSignature, err)
	}

	headerList := params["headers"]
	if headerList == "" {
		headerList = "(request-target) host date"
	}

	return &Signature{
		KeyId:     params["keyId"],
		Algorithm: params["algorithm"],
		Headers:   strings.Fields(headerList),
		Value:     value,
	}, nil
}

// BuildSigningString concatenates "name: value" pairs for the given header
// names in order, joined by newlines with no trailing newline. The
// (request-target) pseudo-header expands to lowercase method + space + path.
func BuildSigningString(headers []string, method, path string, value func(string) string) string {
	parts := make([]string, 0, len(headers))
	for _, name := range headers {
		if name == "(request-target)" {
			parts = append(parts, fmt.Sprintf("(request-target): %s %s", strings.ToLower(method), path))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(name), value(name)))
	}
	return strings.Join(parts, "\n")
}

// ComputeDigest returns the Digest header value for a request body.
func ComputeDigest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

// Codec signs outbound requests with the local key and verifies inbound
// ones against fetched remote keys.
type Codec struct {
	keys     *KeyStore
	resolver *Resolver
	window   time.Duration
	now      func() time.Time
}

// NewCodec builds a Codec. window is the accepted Date header skew in
// either direction.
func NewCodec(keys *KeyStore, resolver *Resolver, window time.Duration) *Codec {
	return &Codec{keys: keys, resolver: resolver, window: window, now: time.Now}
}

// Sign computes the body digest, inserts it into headers, and returns the
// Signature header value for the request. Pure function of its inputs and
// the local key; no network I/O.
func (c *Codec) Sign(method, path string, headers map[string]string, body []byte) (string, error) {
	headers["Digest"] = ComputeDigest(body)

	signingString := BuildSigningString(signedHeaders, method, path, func(name string) string {
		return headerValue(headers, name)
	})

	sig, err := c.keys.Sign([]byte(signingString))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`keyId="%s",algorithm="%s",headers="%s",signature="%s"`,
		c.keys.KeyId(), algorithmHS2019, strings.Join(signedHeaders, " "), sig), nil
}

// Verify authenticates an inbound request: digest, date freshness, then the
// cryptographic signature against the key fetched for keyId. On success it
// returns the signing actor's URI (keyId with the fragment stripped).
func (c *Codec) Verify(method, path string, headers http.Header, body []byte) (string, error) {
	sigHeader := headers.Get("Signature")
	if sigHeader == "" {
		return "", ErrMissingSignature
	}

	sig, err := ParseSignatureHeader(sigHeader)
	if err != nil {
		return "", err
	}

	if err := c.verifyDigest(headers.Get("Digest"), body); err != nil {
		return "", err
	}

	if err := c.verifyDate(headers.Get("Date")); err != nil {
		return "", err
	}

	pubKey, err := c.resolver.PublicKey(sig.KeyId)
	if err != nil {
		return "", err
	}

	signingString := BuildSigningString(sig.Headers, method, path, headers.Get)

	hashed := sha256.Sum256([]byte(signingString))
	if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, hashed[:], sig.Value); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	actorURI, _, _ := strings.Cut(sig.KeyId, "#")
	return actorURI, nil
}

func (c *Codec) verifyDigest(digestHeader string, body []byte) error {
	if digestHeader == "" {
		return fmt.Errorf("%w: no digest header", ErrDigestMismatch)
	}

	algo, value, found := strings.Cut(digestHeader, "=")
	if !found || !strings.EqualFold(algo, "SHA-256") {
		return fmt.Errorf("%w: unsupported digest %q", ErrDigestMismatch, digestHeader)
	}

	expected := strings.TrimPrefix(ComputeDigest(body), "SHA-256=")
	if value != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrDigestMismatch, expected, value)
	}
	return nil
}

func (c *Codec) verifyDate(dateHeader string) error {
	if dateHeader == "" {
		return fmt.Errorf("%w: no date header", ErrStaleRequest)
	}

	requestTime, err := http.ParseTime(dateHeader)
	if err != nil {
		return fmt.Errorf("%w: unparseable date %q", ErrStaleRequest, dateHeader)
	}

	age := c.now().Sub(requestTime)
	if age < 0 {
		age = -age
	}
	if age > c.window {
		return fmt.Errorf("%w: request is %s old (max %s)", ErrStaleRequest, age, c.window)
	}
	return nil
}

// headerValue looks a header up case-insensitively in a plain map.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
