package piimask_test

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	piimask "github.com/Gokulkiran418/aws-textract-mask-pii"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type maskCall struct {
	file  string
	style piimask.MaskStyle
}

// fakeMasker records every call and answers with fn when set, or with a
// fixed masked image otherwise.
type fakeMasker struct {
	mu    sync.Mutex
	calls []maskCall
	fn    func(ctx context.Context, f *piimask.File, style piimask.MaskStyle) (*piimask.MaskedImage, error)
}

func (m *fakeMasker) Mask(ctx context.Context, f *piimask.File, style piimask.MaskStyle) (*piimask.MaskedImage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, maskCall{file: f.Name, style: style})
	m.mu.Unlock()

	if m.fn != nil {
		return m.fn(ctx, f, style)
	}
	return okImage([]byte("masked")), nil
}

func (m *fakeMasker) Calls() []maskCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]maskCall(nil), m.calls...)
}

// okImage builds a MaskedImage the way the wire does, from a base64
// payload.
func okImage(raw []byte) *piimask.MaskedImage {
	img, err := piimask.DecodeMaskedImage(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		panic(err)
	}
	return img
}

func pngFile(name string) *piimask.File {
	return &piimask.File{Name: name, ContentType: "image/png", Data: []byte("png-bytes")}
}

func TestUploader_InitialState(t *testing.T) {
	up := piimask.NewUploader(zerolog.Logger{}, &fakeMasker{})
	defer up.Close()

	st := up.Status()
	require.Equal(t, piimask.StateIdle, st.State)
	require.True(t, st.Ready())
	require.False(t, st.Loading())
	require.Equal(t, piimask.MaskRectangle, up.MaskStyle())
}

func TestUploader_RejectsInvalidFile(t *testing.T) {
	var tbl = []struct {
		name string
		file *piimask.File
	}{
		{name: "nil file", file: nil},
		{name: "empty data", file: &piimask.File{Name: "a.png", ContentType: "image/png"}},
		{name: "plain text", file: &piimask.File{Name: "a.txt", ContentType: "text/plain", Data: []byte("x")}},
		{name: "gif", file: &piimask.File{Name: "a.gif", ContentType: "image/gif", Data: []byte("x")}},
		{name: "no declared type", file: &piimask.File{Name: "a", Data: []byte("x")}},
	}

	for _, tc := range tbl {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeMasker{}
			up := piimask.NewUploader(zerolog.Logger{}, svc)
			defer up.Close()

			st := <-up.Submit(context.Background(), tc.file)

			require.Equal(t, piimask.StateFailed, st.State)
			require.Equal(t, piimask.InvalidFileMessage, st.Message)
			require.Nil(t, st.Result)
			require.Empty(t, svc.Calls(), "rejected file must never reach the service")

			cur := up.Status()
			require.Equal(t, piimask.StateFailed, cur.State)
			require.Equal(t, piimask.InvalidFileMessage, cur.Message)
		})
	}
}

func TestUploader_AcceptsDeclaredTypes(t *testing.T) {
	var tbl = []string{"image/png", "image/jpeg", "IMAGE/PNG", "Image/Jpeg"}

	for _, ct := range tbl {
		t.Run(ct, func(t *testing.T) {
			svc := &fakeMasker{}
			up := piimask.NewUploader(zerolog.Logger{}, svc)
			defer up.Close()

			f := &piimask.File{Name: "a", ContentType: ct, Data: []byte("x")}
			st := <-up.Submit(context.Background(), f)

			require.Equal(t, piimask.StateSucceeded, st.State)
			require.Len(t, svc.Calls(), 1)
		})
	}
}

func TestUploader_SubmitSuccess(t *testing.T) {
	svc := &fakeMasker{}
	up := piimask.NewUploader(zerolog.Logger{}, svc)

	st := <-up.Submit(context.Background(), pngFile("photo.png"))

	require.Equal(t, piimask.StateSucceeded, st.State)
	require.Empty(t, st.Message)
	require.NotNil(t, st.Result)
	require.Equal(t, []byte("masked"), st.Result.Bytes())
	require.NotEmpty(t, st.ID)

	calls := svc.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, maskCall{file: "photo.png", style: piimask.MaskRectangle}, calls[0])

	img := <-up.Results()
	require.Equal(t, []byte("masked"), img.Bytes())

	up.Close()
	_, open := <-up.Results()
	require.False(t, open, "results channel must close on Close")
}

func TestUploader_FailureMessages(t *testing.T) {
	var tbl = []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "service detail",
			err:     &piimask.ServiceError{StatusCode: 400, Detail: "Only PNG and JPEG images are supported."},
			message: "Only PNG and JPEG images are supported.",
		},
		{
			name:    "service error without detail",
			err:     &piimask.ServiceError{StatusCode: 502},
			message: piimask.GenericErrorMessage,
		},
		{
			name:    "transport error",
			err:     errors.New("dial tcp: connection refused"),
			message: piimask.GenericErrorMessage,
		},
		{
			name:    "wrapped service detail",
			err:     errors.Join(errors.New("outer"), &piimask.ServiceError{StatusCode: 500, Detail: "OCR failed"}),
			message: "OCR failed",
		},
	}

	for _, tc := range tbl {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeMasker{fn: func(context.Context, *piimask.File, piimask.MaskStyle) (*piimask.MaskedImage, error) {
				return nil, tc.err
			}}
			up := piimask.NewUploader(zerolog.Logger{}, svc)
			defer up.Close()

			st := <-up.Submit(context.Background(), pngFile("a.png"))

			require.Equal(t, piimask.StateFailed, st.State)
			require.Equal(t, tc.message, st.Message)
			require.Nil(t, st.Result)
		})
	}
}

// A failed attempt leaves no residue: the next attempt starts from the same
// clean slate and its terminal status replaces message and result wholesale.
func TestUploader_SequentialSubmissions(t *testing.T) {
	fail := true
	svc := &fakeMasker{fn: func(context.Context, *piimask.File, piimask.MaskStyle) (*piimask.MaskedImage, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return okImage([]byte("second")), nil
	}}
	up := piimask.NewUploader(zerolog.Logger{}, svc)
	defer up.Close()

	first := <-up.Submit(context.Background(), pngFile("a.png"))
	require.Equal(t, piimask.StateFailed, first.State)
	require.Equal(t, piimask.GenericErrorMessage, up.Status().Message)

	fail = false
	second := <-up.Submit(context.Background(), pngFile("a.png"))
	require.Equal(t, piimask.StateSucceeded, second.State)
	require.NotEqual(t, first.ID, second.ID, "each submission is its own attempt")

	cur := up.Status()
	require.Empty(t, cur.Message, "old failure message must not survive a success")
	require.NotNil(t, cur.Result)
	require.Equal(t, []byte("second"), cur.Result.Bytes())
	require.Len(t, svc.Calls(), 2)
}

func TestUploader_SelectMaskStyle(t *testing.T) {
	up := piimask.NewUploader(zerolog.Logger{}, &fakeMasker{})
	defer up.Close()

	require.NoError(t, up.SelectMaskStyle(piimask.MaskBlur))
	require.Equal(t, piimask.MaskBlur, up.MaskStyle())

	require.NoError(t, up.SelectMaskStyle(" Rectangle "))
	require.Equal(t, piimask.MaskRectangle, up.MaskStyle())

	require.Error(t, up.SelectMaskStyle("pixelate"))
	require.Equal(t, piimask.MaskRectangle, up.MaskStyle(), "a rejected style must not stick")
}

// Changing the style while a request is in flight must not touch that
// request: the selection is captured at dispatch time.
func TestUploader_StyleCapturedAtDispatch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeMasker{fn: func(context.Context, *piimask.File, piimask.MaskStyle) (*piimask.MaskedImage, error) {
		close(started)
		<-release
		return okImage([]byte("x")), nil
	}}
	up := piimask.NewUploader(zerolog.Logger{}, svc)
	defer up.Close()

	done := up.Submit(context.Background(), pngFile("a.png"))
	<-started
	require.True(t, up.Status().Loading())

	require.NoError(t, up.SelectMaskStyle(piimask.MaskBlur))
	close(release)

	st := <-done
	require.Equal(t, piimask.StateSucceeded, st.State)
	require.Equal(t, piimask.MaskRectangle, st.Style)
	require.Equal(t, piimask.MaskRectangle, svc.Calls()[0].style)
	require.Equal(t, piimask.MaskBlur, up.MaskStyle(), "the new style applies to the next submission")
}

// Overlapping submissions are legal and unordered: whichever resolves last
// owns the workflow status, regardless of dispatch order.
func TestUploader_LastResolvedWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := &fakeMasker{fn: func(_ context.Context, f *piimask.File, _ piimask.MaskStyle) (*piimask.MaskedImage, error) {
		if f.Name == "slow.png" {
			close(started)
			<-release
			return nil, errors.New("late failure")
		}
		return okImage([]byte("fast")), nil
	}}
	up := piimask.NewUploader(zerolog.Logger{}, svc)
	defer up.Close()

	doneSlow := up.Submit(context.Background(), pngFile("slow.png"))
	<-started
	doneFast := up.Submit(context.Background(), pngFile("fast.png"))

	fast := <-doneFast
	require.Equal(t, piimask.StateSucceeded, fast.State)

	close(release)
	slow := <-doneSlow
	require.Equal(t, piimask.StateFailed, slow.State)

	cur := up.Status()
	require.Equal(t, piimask.StateFailed, cur.State, "the later resolution wins")
	require.Equal(t, slow.ID, cur.ID)

	// The fast success is still the newest image on the results channel.
	img := <-up.Results()
	require.Equal(t, []byte("fast"), img.Bytes())
}

// The results channel keeps only the newest unconsumed image.
func TestUploader_ResultsKeepNewest(t *testing.T) {
	n := 0
	svc := &fakeMasker{fn: func(context.Context, *piimask.File, piimask.MaskStyle) (*piimask.MaskedImage, error) {
		n++
		return okImage([]byte{byte('0' + n)}), nil
	}}
	up := piimask.NewUploader(zerolog.Logger{}, svc)

	<-up.Submit(context.Background(), pngFile("a.png"))
	<-up.Submit(context.Background(), pngFile("b.png"))
	<-up.Submit(context.Background(), pngFile("c.png"))
	up.Close()

	var got [][]byte
	for img := range up.Results() {
		got = append(got, img.Bytes())
	}
	require.Equal(t, [][]byte{{'3'}}, got)
}

func TestUploader_CloseIsIdempotent(t *testing.T) {
	up := piimask.NewUploader(zerolog.Logger{}, &fakeMasker{})
	<-up.Submit(context.Background(), pngFile("a.png"))
	up.Close()
	up.Close()
}
