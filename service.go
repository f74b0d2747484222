package piimask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// DefaultEndpoint is where a locally run masking service accepts uploads.
const DefaultEndpoint = "http://localhost:8000/upload"

const (
	// DefaultRequestTimeout bounds one full upload round trip, response
	// body included. The service OCRs the whole image before masking, so
	// the bound is generous.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultMaxResponseSize caps the response body. It carries a single
	// base64 encoded PNG, which inflates the image by about a third.
	DefaultMaxResponseSize = 64 * 1024 * 1024
)

// ServiceError is a masking request the service answered with a non-2xx
// status. Detail carries the human readable explanation from the response
// body when the service provided one.
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("masking service returned http %d", e.StatusCode)
	}
	return fmt.Sprintf("masking service returned http %d: %s", e.StatusCode, e.Detail)
}

// MaskService implements interface Masker over HTTP. It posts the image
// and the masking style as a multipart form to the service's upload
// endpoint, using a fasthttp client with explicit timeouts. Each Mask call
// performs exactly one request; retrying is the caller's decision and the
// workflow never retries.
type MaskService struct {
	log      zerolog.Logger
	endpoint string
	client   fasthttp.Client
}

// NewMaskService returns a MaskService posting to endpoint. An empty
// endpoint selects DefaultEndpoint.
func NewMaskService(l zerolog.Logger, endpoint string) *MaskService {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &MaskService{
		log:      l.With().Str("component", "service").Logger(),
		endpoint: endpoint,
		client: fasthttp.Client{
			ReadTimeout:         DefaultRequestTimeout,
			WriteTimeout:        DefaultRequestTimeout,
			MaxResponseBodySize: DefaultMaxResponseSize,
		},
	}
}

// SetTimeout sets the maximum duration for one full request round trip.
// Values of zero or below keep the current timeout.
func (s *MaskService) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.client.ReadTimeout = d
	s.client.WriteTimeout = d
}

// Endpoint returns the upload URL requests are sent to.
func (s *MaskService) Endpoint() string {
	return s.endpoint
}

// uploadResponse is the JSON body schema of the service, for success
// (masked_image) and failure (detail) alike.
type uploadResponse struct {
	MaskedImage string `json:"masked_image"`
	Detail      string `json:"detail"`
}

// Mask implements interface Masker. It sends f under the multipart field
// "file" (with its declared media type on the part header) and style under
// "mask_type", then decodes the masked image from the JSON response. Any
// non-2xx status yields a *ServiceError; a 2xx response without a usable
// masked_image payload is reported as malformed.
func (s *MaskService) Mask(ctx context.Context, f *File, style MaskStyle) (*MaskedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, contentType, err := encodeUploadForm(f, style)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(contentType)
	req.SetBody(body)

	t := time.Now()
	if err := s.client.DoDeadline(req, resp, s.deadline(ctx)); err != nil {
		return nil, fmt.Errorf("post %s: %w", s.endpoint, err)
	}

	// Failure bodies may legally be empty or non-JSON; parse best-effort
	// and keep whatever detail came through.
	var parsed uploadResponse
	_ = json.Unmarshal(resp.Body(), &parsed)

	code := resp.StatusCode()
	if code < 200 || code > 299 {
		s.log.Debug().Int("status", code).Str("detail", parsed.Detail).Msg("service rejected upload")
		return nil, &ServiceError{StatusCode: code, Detail: strings.TrimSpace(parsed.Detail)}
	}

	img, err := DecodeMaskedImage(parsed.MaskedImage)
	if err != nil {
		return nil, fmt.Errorf("malformed service response: %w", err)
	}

	s.log.Debug().
		Int("status", code).
		Int("size", len(img.Bytes())).
		Str("style", string(style)).
		Str("dur", time.Since(t).String()).
		Msg("image masked")
	return img, nil
}

// deadline merges the configured timeout with the context deadline,
// whichever ends first. fasthttp cannot abort a request already on the
// wire, so the deadline is fixed at issue time.
func (s *MaskService) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.client.ReadTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// encodeUploadForm builds the multipart body the service expects: the
// image bytes under field "file" carrying the declared media type, and
// the masking style under field "mask_type".
func encodeUploadForm(f *File, style MaskStyle) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := f.Name
	if name == "" {
		name = "upload"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", f.ContentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.WriteField("mask_type", string(style)); err != nil {
		return nil, "", fmt.Errorf("write mask_type field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("finish upload form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
