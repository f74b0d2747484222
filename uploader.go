package piimask

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// User-facing messages for the two failure classes the workflow can
// surface. Validation failures never reach the network; every other
// failure falls back to the generic line unless the service supplied a
// detail of its own.
const (
	InvalidFileMessage  = "Please upload a PNG or JPEG image."
	GenericErrorMessage = "Failed to process image."
)

// allowedMediaTypes lists the declared media types a submission may carry.
// The service enforces the same set on its side.
var allowedMediaTypes = []string{"image/png", "image/jpeg"}

// Uploader owns the submission workflow between local file selection and
// the remote masking service: it validates candidates, keeps the pending
// mask style, dispatches the network call and tracks the workflow state.
// One Uploader serves one session; create it once and submit any number of
// times.
type Uploader struct {
	log    zerolog.Logger
	svc    Masker
	mu     sync.Mutex
	status Status
	style  MaskStyle
	result chan *MaskedImage
	closed bool
	wg     sync.WaitGroup
}

// NewUploader returns an Uploader submitting through svc. The mask style
// starts at rectangle, matching the service default.
func NewUploader(l zerolog.Logger, svc Masker) *Uploader {
	return &Uploader{
		log:    l.With().Str("component", "uploader").Logger(),
		svc:    svc,
		status: Status{State: StateIdle},
		style:  MaskRectangle,
		result: make(chan *MaskedImage, 1),
	}
}

// SelectMaskStyle chooses the style for subsequent submissions. It has no
// effect on a request already in flight: every submission captures the
// selection at dispatch time.
func (u *Uploader) SelectMaskStyle(style MaskStyle) error {
	parsed, err := ParseMaskStyle(string(style))
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.style = parsed
	u.mu.Unlock()
	return nil
}

// MaskStyle returns the style the next submission will carry.
func (u *Uploader) MaskStyle() MaskStyle {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.style
}

// Status returns the current workflow snapshot.
func (u *Uploader) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// Results returns the channel of successfully masked images. The channel
// holds at most the newest image: a result nobody consumed is dropped when
// the next one arrives, so no history accumulates. The channel closes on
// Close.
func (u *Uploader) Results() <-chan *MaskedImage {
	return u.result
}

// Submit validates f and, when it passes, posts it with the currently
// selected mask style. A rejected file makes no network call at all; an
// accepted one makes exactly one and is never retried. Submit does not
// block on the network: it returns a channel that resolves with this
// attempt's terminal status once the upload settles.
//
// Overlapping submissions are permitted but not ordered: the workflow
// status reflects whichever transition happened last, and an in-flight
// request cannot be aborted. Interactive surfaces are expected to wait for
// one submission before starting the next.
func (u *Uploader) Submit(ctx context.Context, f *File) <-chan Status {
	done := make(chan Status, 1)
	id := uuid.NewString()

	u.mu.Lock()
	style := u.style
	u.status = Status{ID: id, State: StateValidating, Style: style}
	u.mu.Unlock()

	if err := validateFile(f); err != nil {
		st := Status{ID: id, State: StateFailed, Style: style, Message: InvalidFileMessage}
		u.setStatus(st)
		u.log.Error().Str("submission", id).Str("errmsg", err.Error()).Msg("file rejected")
		done <- st
		return done
	}

	u.setStatus(Status{ID: id, State: StateSubmitting, Style: style})
	u.log.Debug().
		Str("submission", id).
		Str("file", f.Name).
		Str("style", string(style)).
		Int("size", len(f.Data)).
		Msg("submitting")

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		img, err := u.svc.Mask(ctx, f, style)

		var term Status
		if err != nil {
			term = Status{ID: id, State: StateFailed, Style: style, Message: failureMessage(err)}
			u.log.Error().Str("submission", id).Str("errmsg", err.Error()).Msg("submission failed")
		} else {
			term = Status{ID: id, State: StateSucceeded, Style: style, Result: img}
			u.log.Info().Str("submission", id).Int("size", len(img.Bytes())).Msg("masked image received")
		}

		u.setStatus(term)
		if err == nil {
			u.emit(img)
		}
		done <- term
	}()
	return done
}

// Close waits for in-flight submissions to settle and closes the results
// channel, ending any presenter subscription. The Uploader must not be
// used once Close has been called.
func (u *Uploader) Close() {
	u.wg.Wait()
	u.mu.Lock()
	if !u.closed {
		u.closed = true
		close(u.result)
	}
	u.mu.Unlock()
}

func (u *Uploader) setStatus(st Status) {
	u.mu.Lock()
	u.status = st
	u.mu.Unlock()
}

// emit hands img to the results channel, displacing an unconsumed older
// image: the newest result always wins and nothing accumulates.
func (u *Uploader) emit(img *MaskedImage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		// Close ran after this submission resolved; the image stays
		// reachable through Status.
		return
	}
	select {
	case u.result <- img:
	default:
		select {
		case <-u.result:
		default:
		}
		u.result <- img
	}
}

// validateFile applies the client-side gate: the file must exist, carry
// bytes and declare a PNG or JPEG media type. The declared type is trusted
// as-is; content sniffing is the service's business.
func validateFile(f *File) error {
	if f == nil || len(f.Data) == 0 {
		return errors.New("no file selected")
	}
	for _, t := range allowedMediaTypes {
		if strings.EqualFold(f.ContentType, t) {
			return nil
		}
	}
	return fmt.Errorf("unsupported media type %q", f.ContentType)
}

// failureMessage converts a submission error into the user-facing error
// line, preferring the service-supplied detail over the generic fallback.
func failureMessage(err error) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Detail != "" {
		return se.Detail
	}
	return GenericErrorMessage
}
